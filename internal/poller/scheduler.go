// Package poller drives the reconciliation loop: a scheduler that never lets two ticks
// overlap, the per-tick reconciler that decides whether playback must be transferred,
// and the device selection strategies.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TickFunc is one reconciliation tick. ctx is cancelled when the scheduler stops.
type TickFunc func(ctx context.Context)

// Scheduler runs a TickFunc periodically on a single goroutine. Ticks never overlap;
// firings that arrive while a tick runs coalesce into at most one pending tick.
type Scheduler struct {
	tick TickFunc

	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	trigger  chan struct{}
	reset    chan struct{}
}

// NewScheduler returns a stopped scheduler.
func NewScheduler(interval time.Duration, tick TickFunc) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		tick:     tick,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		reset:    make(chan struct{}, 1),
	}
}

// Start begins ticking, with an immediate first tick. It is a no-op when running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	previous := s.done
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go s.run(runCtx, previous, done)
}

// Stop cancels the timer and the context of any in-flight tick. It does not wait for
// the tick to return; a later Start waits for it before ticking again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
}

// Wait blocks until the most recent run goroutine has exited.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// TriggerNow requests a tick as soon as the current one (if any) finishes.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// SetInterval changes the period; the running ticker is reset.
func (s *Scheduler) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

// Interval returns the configured period.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) run(ctx context.Context, previous <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	// A stopped run may still be finishing its last tick.
	if previous != nil {
		select {
		case <-previous:
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	pending := true
	for {
		if pending {
			pending = false
			s.runTick(ctx)
			if ctx.Err() != nil {
				return
			}
			// Firings during the tick collapse into one follow-up.
			select {
			case <-ticker.C:
				pending = true
			default:
			}
			select {
			case <-s.trigger:
				pending = true
			default:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending = true
		case <-s.trigger:
			pending = true
		case <-s.reset:
			ticker.Reset(s.Interval())
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	tickID := uuid.NewString()[:8]
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.WithField("request_id", tickID).Errorf("reconciliation tick panicked: %v", r)
		}
	}()
	s.tick(withTickID(ctx, tickID))
	log.WithField("request_id", tickID).Debugf("reconciliation tick finished in %s", time.Since(start).Round(time.Millisecond))
}

type tickIDKey struct{}

func withTickID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tickIDKey{}, id)
}

// TickID returns the identifier of the tick that owns ctx, or "".
func TickID(ctx context.Context) string {
	if id, ok := ctx.Value(tickIDKey{}).(string); ok {
		return id
	}
	return ""
}
