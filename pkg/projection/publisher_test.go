package projection

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/loofy147/circles/internal/circle"
)

func TestPublisher_DeliversInOrderWithinBatch(t *testing.T) {
	p := NewPublisher()
	sub := p.Subscribe()

	circleID := uuid.New()
	batch := []circle.CircleEvent{
		{CircleID: circleID, Version: 1, Type: circle.EventTypeCircleCreated},
		{CircleID: circleID, Version: 2, Type: circle.EventTypeCircleUpdated},
		{CircleID: circleID, Version: 3, Type: circle.EventTypeCircleUpdated},
	}
	p.Publish(batch)

	for _, want := range batch {
		select {
		case got := <-sub:
			require.Equal(t, want.Version, got.Version)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
}

func TestPublisher_MultipleSubscribersEachReceiveFullBatch(t *testing.T) {
	p := NewPublisher()
	subA := p.Subscribe()
	subB := p.Subscribe()

	batch := []circle.CircleEvent{{Version: 1, Type: circle.EventTypeCircleCreated}}
	p.Publish(batch)

	for _, sub := range []<-chan circle.CircleEvent{subA, subB} {
		select {
		case got := <-sub:
			require.Equal(t, 1, got.Version)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
}

func TestPublisher_NeverBlocksOnSlowSubscriber(t *testing.T) {
	p := NewPublisher()
	_ = p.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			p.Publish([]circle.CircleEvent{{Version: i + 1}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
