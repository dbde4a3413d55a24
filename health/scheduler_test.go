package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProber struct {
	failing map[string]bool
}

func (p *fakeProber) Probe(_ context.Context, backendID string) error {
	if p.failing[backendID] {
		return errors.New("probe: no response")
	}
	return nil
}

type fakeRecorder struct {
	running  []string
	failures map[string]int
	resets   []string
}

func (r *fakeRecorder) RunningIDs() []string { return r.running }

func (r *fakeRecorder) RecordHealthFailure(_ context.Context, id string) int {
	if r.failures == nil {
		r.failures = make(map[string]int)
	}
	r.failures[id]++
	return r.failures[id]
}

func (r *fakeRecorder) ResetHealthFailures(_ context.Context, id string) {
	r.resets = append(r.resets, id)
}

func TestRunOnce(t *testing.T) {
	prober := &fakeProber{failing: map[string]bool{"broken": true}}
	recorder := &fakeRecorder{running: []string{"broken", "healthy"}}

	var events []Event
	s, err := NewScheduler(SchedulerConfig{
		Prober:       prober,
		Recorder:     recorder,
		PollInterval: time.Minute,
		OnEvent: func(e Event) {
			events = append(events, e)
		},
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	s.RunOnce(context.Background())

	if recorder.failures["broken"] != 1 {
		t.Fatalf("failures[broken] = %d, want 1", recorder.failures["broken"])
	}
	if len(recorder.resets) != 1 || recorder.resets[0] != "healthy" {
		t.Fatalf("resets = %v, want [healthy]", recorder.resets)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	for _, e := range events {
		if e.BackendID == "broken" && (e.Healthy || e.Failures != 1) {
			t.Fatalf("broken event = %+v", e)
		}
		if e.BackendID == "healthy" && !e.Healthy {
			t.Fatalf("healthy event = %+v", e)
		}
	}
}

func TestRunOnceFailureCountAccumulates(t *testing.T) {
	prober := &fakeProber{failing: map[string]bool{"broken": true}}
	recorder := &fakeRecorder{running: []string{"broken"}}
	s, err := NewScheduler(SchedulerConfig{
		Prober:       prober,
		Recorder:     recorder,
		PollInterval: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		s.RunOnce(context.Background())
	}
	if recorder.failures["broken"] != 3 {
		t.Fatalf("failures = %d, want 3", recorder.failures["broken"])
	}
}

func TestNewSchedulerScheduleParsing(t *testing.T) {
	recorder := &fakeRecorder{}
	prober := &fakeProber{}

	s, err := NewScheduler(SchedulerConfig{
		Prober:   prober,
		Recorder: recorder,
		Schedule: "@every 45s",
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	if got := s.nextDelay(now); got != 45*time.Second {
		t.Fatalf("nextDelay() = %v, want 45s", got)
	}

	if _, err := NewScheduler(SchedulerConfig{
		Prober:   prober,
		Recorder: recorder,
		Schedule: "not a schedule",
	}); err == nil {
		t.Fatal("NewScheduler() expected error for invalid schedule")
	}
}

func TestNextDelayTracksCalendarSchedule(t *testing.T) {
	s, err := NewScheduler(SchedulerConfig{
		Prober:   &fakeProber{},
		Recorder: &fakeRecorder{},
		Schedule: "0 3 * * *",
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	noon := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	if got, want := s.nextDelay(noon), 15*time.Hour; got != want {
		t.Fatalf("nextDelay(noon) = %v, want %v", got, want)
	}
	// The delay shrinks as the wall clock approaches the scheduled time
	// instead of staying at a fixed period.
	nearly := time.Date(2026, 1, 3, 2, 59, 0, 0, time.UTC)
	if got, want := s.nextDelay(nearly), time.Minute; got != want {
		t.Fatalf("nextDelay(nearly) = %v, want %v", got, want)
	}
}

func TestStartStop(t *testing.T) {
	s, err := NewScheduler(SchedulerConfig{
		Prober:       &fakeProber{},
		Recorder:     &fakeRecorder{},
		PollInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	// Second Start is a no-op.
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	// Stopping again is safe.
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}
