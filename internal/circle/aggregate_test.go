package circle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCreate_ValidatesCapacity(t *testing.T) {
	_, _, err := Create("Music club", 2)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreate_RejectsEmptyName(t *testing.T) {
	_, _, err := Create("", 10)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreate_HappyPath(t *testing.T) {
	state, event, err := Create("Music club", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Version)
	assert.Equal(t, "Music club", state.Name)
	assert.Equal(t, int16(10), state.Capacity)
	assert.Equal(t, EventTypeCircleCreated, event.Type)
	assert.Equal(t, state.ID, event.CircleID)
	assert.Equal(t, 1, event.Version)
}

func TestUpdate_PreservesIDAndAdvancesVersion(t *testing.T) {
	state, _, err := Create("Music club", 10)
	require.NoError(t, err)

	newName := "Football club"
	var newCapacity int16 = 20
	next, event, err := Update(state, &newName, &newCapacity)
	require.NoError(t, err)

	assert.Equal(t, state.ID, next.ID)
	assert.Equal(t, 2, next.Version)
	assert.Equal(t, "Football club", next.Name)
	assert.Equal(t, int16(20), next.Capacity)
	assert.Equal(t, 2, event.Version)
}

func TestUpdate_BothFieldsAbsentStillAdvancesVersion(t *testing.T) {
	state, _, err := Create("Music club", 10)
	require.NoError(t, err)

	next, _, err := Update(state, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, next.Version)
	assert.Equal(t, state.Name, next.Name)
	assert.Equal(t, state.Capacity, next.Capacity)
}

func TestUpdate_RejectsSmallCapacity(t *testing.T) {
	state, _, err := Create("Music club", 10)
	require.NoError(t, err)

	var tooSmall int16 = 1
	_, _, err = Update(state, nil, &tooSmall)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestApply_PreconditionViolationIsCorrupt(t *testing.T) {
	state, _, err := Create("Music club", 10)
	require.NoError(t, err)

	badEvent := CircleEvent{
		CircleID: state.ID,
		Version:  5, // should be 2
		Type:     EventTypeCircleUpdated,
		Data:     []byte(`{}`),
	}
	_, err = Apply(state, badEvent)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestReplay_RequiresCircleCreatedFirst(t *testing.T) {
	_, event, err := Create("Music club", 10)
	require.NoError(t, err)

	_, err = Replay([]CircleEvent{event, event})
	require.Error(t, err)

	updateEventOnly := CircleEvent{CircleID: event.CircleID, Version: 1, Type: EventTypeCircleUpdated, Data: []byte(`{}`)}
	_, err = Replay([]CircleEvent{updateEventOnly})
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestReplay_EmptyIsCorrupt(t *testing.T) {
	_, err := Replay(nil)
	require.ErrorIs(t, err, ErrCorrupt)
}

// P1/P3: replaying the full event log yields the same state as
// folding the commands that produced it, and versions are 1..n.
func TestReplay_MatchesSequentialCommands(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		nUpdates := rapid.IntRange(0, 8).Draw(rt, "nUpdates")

		state, createEvent, err := Create(
			rapid.StringMatching(`[a-zA-Z ]{1,20}`).Draw(rt, "name"),
			rapid.Int16Range(MinCapacity, 1000).Draw(rt, "capacity"),
		)
		require.NoError(rt, err)

		events := []CircleEvent{createEvent}
		for i := 0; i < nUpdates; i++ {
			capacity := rapid.Int16Range(MinCapacity, 1000).Draw(rt, "updateCapacity")
			var next Circle
			var ev CircleEvent
			next, ev, err = Update(state, nil, &capacity)
			require.NoError(rt, err)
			state = next
			events = append(events, ev)
		}

		replayed, err := Replay(events)
		require.NoError(rt, err)

		assert.Equal(rt, state, replayed)
		assert.Equal(rt, len(events), replayed.Version)
		assert.Equal(rt, events[0].CircleID, replayed.ID)
	})
}

// P2: apply is deterministic.
func TestApply_Deterministic(t *testing.T) {
	state, createEvent, err := Create("Music club", 10)
	require.NoError(t, err)

	name := "Renamed"
	_, updateEvent, err := Update(state, &name, nil)
	require.NoError(t, err)

	a, err1 := ReplayFrom(Circle{}, []CircleEvent{createEvent, updateEvent})
	b, err2 := ReplayFrom(Circle{}, []CircleEvent{createEvent, updateEvent})
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, a, b)
}

func TestApply_UnknownEventTypeIsCorrupt(t *testing.T) {
	_, err := Apply(Circle{}, CircleEvent{Version: 1, Type: "circle_archived", Data: []byte(`{}`)})
	var targetErr error = ErrCorrupt
	require.True(t, errors.Is(err, targetErr))
}
