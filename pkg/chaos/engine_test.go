package chaos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEngine_RunRecordsHeldHypothesis(t *testing.T) {
	e := NewEngine()
	injected, restored := false, false

	exp := Experiment{
		Name:       "always-healthy",
		Hypothesis: "the system stays healthy",
		Duration:   1100 * time.Millisecond,
		Fault: Fault{
			Name:    "no-op",
			Inject:  func(ctx context.Context) error { injected = true; return nil },
			Restore: func(ctx context.Context) error { restored = true; return nil },
		},
		Check: func(ctx context.Context) (HealthSnapshot, error) {
			return HealthSnapshot{AppendSuccessRate: 100}, nil
		},
		Assess: func(s HealthSnapshot) (bool, string) {
			return s.AppendSuccessRate > 99, "checked append success rate"
		},
	}

	report, err := e.Run(context.Background(), exp)
	require.NoError(t, err)
	require.True(t, injected)
	require.True(t, restored)
	require.True(t, report.HypothesisHeld)
	require.NotEmpty(t, report.Snapshots)
	require.Len(t, e.Reports(), 1)
}

func TestEngine_RunReportsInjectFailureWithoutObserving(t *testing.T) {
	e := NewEngine()
	wantErr := errors.New("boom")

	exp := Experiment{
		Name:     "inject-fails",
		Duration: time.Second,
		Fault: Fault{
			Name:    "always-fails",
			Inject:  func(ctx context.Context) error { return wantErr },
			Restore: func(ctx context.Context) error { return nil },
		},
		Check:  func(ctx context.Context) (HealthSnapshot, error) { return HealthSnapshot{}, nil },
		Assess: func(s HealthSnapshot) (bool, string) { return true, "" },
	}

	report, err := e.Run(context.Background(), exp)
	require.Error(t, err)
	require.ErrorIs(t, report.FaultError, wantErr)
	require.Empty(t, report.Snapshots)
}

func TestEngine_RunFalsifiesHypothesisOnBadSnapshot(t *testing.T) {
	e := NewEngine()

	exp := Experiment{
		Name:     "version-gap-detected",
		Duration: 1100 * time.Millisecond,
		Fault: Fault{
			Name:    "no-op",
			Inject:  func(ctx context.Context) error { return nil },
			Restore: func(ctx context.Context) error { return nil },
		},
		Check: func(ctx context.Context) (HealthSnapshot, error) {
			return HealthSnapshot{VersionGapViolations: 1}, nil
		},
		Assess: func(s HealthSnapshot) (bool, string) {
			if s.VersionGapViolations == 0 {
				return true, "no gaps"
			}
			return false, "gap detected"
		},
	}

	report, err := e.Run(context.Background(), exp)
	require.NoError(t, err)
	require.False(t, report.HypothesisHeld)
	require.Equal(t, "gap detected", report.Note)
}
