// Package chaos runs fault-injection experiments against a live
// circles deployment: measure steady state, inject a fault, observe
// how append/read/projection behavior responds, roll back, and check
// whether the hypothesis held. The phase structure (steady state ->
// inject -> observe -> rollback -> assess) is a standard chaos-
// engineering game day; what's concrete here is what gets measured —
// circle_events append rate, version-gap count, cache availability,
// projection lag — rather than a generic pluggable metric/action
// interface over string-typed operators and untyped parameter maps.
package chaos

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HealthCheck samples the current state of the system under test.
type HealthCheck func(ctx context.Context) (HealthSnapshot, error)

// HealthSnapshot is a point-in-time reading of the signals a circles
// chaos experiment cares about.
type HealthSnapshot struct {
	Time                 time.Time
	AppendSuccessRate    float64 // percent, over the trailing window
	VersionGapViolations int     // circle_events rows with a non-contiguous version
	CacheAvailable       bool
	ProjectionLagSeconds float64
}

// Fault is one thing to break and how to fix it again.
type Fault struct {
	Name    string
	Inject  func(ctx context.Context) error
	Restore func(ctx context.Context) error
}

// Assessment judges a HealthSnapshot against the experiment's
// hypothesis. Held is false if the hypothesis was falsified.
type Assessment func(HealthSnapshot) (held bool, note string)

// Experiment is one fault-injection scenario.
type Experiment struct {
	Name       string
	Hypothesis string
	Fault      Fault
	Duration   time.Duration
	Check      HealthCheck
	Assess     Assessment
}

// Report captures what happened during one experiment run.
type Report struct {
	ExperimentName string
	Hypothesis     string
	StartTime      time.Time
	EndTime        time.Time
	Snapshots      []HealthSnapshot
	HypothesisHeld bool
	Note           string
	FaultError     error
	RestoreError   error
}

// Engine runs experiments and keeps their reports.
type Engine struct {
	tracer  trace.Tracer
	reports []Report
	mu      sync.Mutex
}

func NewEngine() *Engine {
	return &Engine{tracer: otel.Tracer("github.com/loofy147/circles/pkg/chaos")}
}

// Run executes one experiment: inject the fault, sample health once a
// second for Duration, restore, then assess the last sample against
// the hypothesis.
func (e *Engine) Run(ctx context.Context, exp Experiment) (*Report, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)))
	defer span.End()

	report := &Report{
		ExperimentName: exp.Name,
		Hypothesis:     exp.Hypothesis,
		StartTime:      time.Now(),
	}

	span.AddEvent("injecting_fault", trace.WithAttributes(attribute.String("fault.name", exp.Fault.Name)))
	if err := exp.Fault.Inject(ctx); err != nil {
		report.FaultError = err
		span.RecordError(err)
		return report, fmt.Errorf("inject fault %q: %w", exp.Fault.Name, err)
	}

	span.AddEvent("observing")
	observeCtx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

observe:
	for {
		select {
		case <-observeCtx.Done():
			break observe
		case <-ticker.C:
			snapshot, err := exp.Check(ctx)
			if err != nil {
				span.RecordError(err)
				continue
			}
			snapshot.Time = time.Now()
			report.Snapshots = append(report.Snapshots, snapshot)
		}
	}

	span.AddEvent("restoring")
	if err := exp.Fault.Restore(ctx); err != nil {
		report.RestoreError = err
		span.RecordError(err)
	}

	if len(report.Snapshots) > 0 {
		report.HypothesisHeld, report.Note = exp.Assess(report.Snapshots[len(report.Snapshots)-1])
	} else {
		report.HypothesisHeld, report.Note = false, "no health samples were taken during the observation window"
	}
	report.EndTime = time.Now()

	e.mu.Lock()
	e.reports = append(e.reports, *report)
	e.mu.Unlock()

	span.SetAttributes(attribute.Bool("hypothesis_held", report.HypothesisHeld))
	return report, nil
}

// RunGameDay runs a sequence of experiments, printing a one-line
// result after each, with a pause between them.
func (e *Engine) RunGameDay(ctx context.Context, name string, experiments []Experiment) []Report {
	fmt.Printf("game day: %s (%d experiments)\n", name, len(experiments))

	reports := make([]Report, 0, len(experiments))
	for i, exp := range experiments {
		fmt.Printf("[%d/%d] %s: %s\n", i+1, len(experiments), exp.Name, exp.Hypothesis)

		report, err := e.Run(ctx, exp)
		if err != nil {
			fmt.Printf("  aborted: %v\n", err)
			continue
		}
		reports = append(reports, *report)

		if report.HypothesisHeld {
			fmt.Printf("  held: %s\n", report.Note)
		} else {
			fmt.Printf("  violated: %s\n", report.Note)
		}
		time.Sleep(5 * time.Second)
	}
	return reports
}

// Reports returns every report recorded so far.
func (e *Engine) Reports() []Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Report, len(e.reports))
	copy(out, e.reports)
	return out
}
