// Package health probes running backends in the background and records
// consecutive failures on the lifecycle manager.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultPollInterval = 30 * time.Second

// Prober checks whether one running backend still answers the protocol. The
// relay implements it.
type Prober interface {
	Probe(ctx context.Context, backendID string) error
}

// Recorder receives probe outcomes. The lifecycle manager implements it.
type Recorder interface {
	RunningIDs() []string
	RecordHealthFailure(ctx context.Context, id string) int
	ResetHealthFailures(ctx context.Context, id string)
}

// Event captures one scheduler-driven probe result.
type Event struct {
	BackendID string
	Healthy   bool
	Failures  int
	Error     error
}

// EventHandler handles scheduler probe events.
type EventHandler func(event Event)

// SchedulerConfig controls background probe scheduling.
type SchedulerConfig struct {
	Prober   Prober
	Recorder Recorder

	// Schedule is a cron expression, including the @every form. It takes
	// precedence over PollInterval when set.
	Schedule     string
	PollInterval time.Duration
	OnEvent      EventHandler
}

// Scheduler periodically probes every running backend.
type Scheduler struct {
	prober   Prober
	recorder Recorder
	schedule cron.Schedule
	interval time.Duration
	onEvent  EventHandler

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a probe scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Prober == nil || cfg.Recorder == nil {
		return nil, errors.New("health: scheduler requires a prober and a recorder")
	}

	var schedule cron.Schedule
	if cfg.Schedule != "" {
		parsed, err := cron.ParseStandard(cfg.Schedule)
		if err != nil {
			return nil, errors.New("health: invalid probe schedule " + cfg.Schedule)
		}
		schedule = parsed
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(Event) {}
	}

	return &Scheduler{
		prober:   cfg.Prober,
		recorder: cfg.Recorder,
		schedule: schedule,
		interval: interval,
		onEvent:  cfg.OnEvent,
	}, nil
}

// nextDelay reports how long to wait before the next probe run. Cron
// schedules are re-evaluated against the wall clock on every tick, so a
// calendar expression like "0 3 * * *" fires at the named times rather
// than at a fixed period.
func (s *Scheduler) nextDelay(now time.Time) time.Duration {
	if s.schedule != nil {
		return s.schedule.Next(now).Sub(now)
	}
	return s.interval
}

// Start begins scheduler execution. Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("health: scheduler is nil")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		timer := time.NewTimer(s.nextDelay(time.Now()))
		defer timer.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-timer.C:
				s.RunOnce(loopCtx)
				timer.Reset(s.nextDelay(time.Now()))
			}
		}
	}()

	return nil
}

// Stop terminates scheduler execution and waits for the loop to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce probes every running backend one time.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, id := range s.recorder.RunningIDs() {
		err := s.prober.Probe(ctx, id)
		event := Event{BackendID: id, Healthy: err == nil, Error: err}
		if err != nil {
			event.Failures = s.recorder.RecordHealthFailure(ctx, id)
		} else {
			s.recorder.ResetHealthFailures(ctx, id)
		}
		s.onEvent(event)
	}
}
