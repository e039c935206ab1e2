package poller

import (
	"context"
	"sync"

	"github.com/router-for-me/NowPlaying/internal/config"
	log "github.com/sirupsen/logrus"
)

// Loop owns the scheduler and reconciler and pauses polling while nothing is watching.
// Each surface (page connection, terminal, API caller) reports its own visibility;
// polling runs while at least one is visible.
type Loop struct {
	scheduler  *Scheduler
	reconciler *Reconciler

	applyMu sync.Mutex

	mu              sync.Mutex
	baseCtx         context.Context
	started         bool
	pauseWhenHidden bool
	sources         map[string]bool
}

// NewLoop builds a loop ticking rec every poll.Interval.
func NewLoop(rec *Reconciler, poll config.PollConfig) *Loop {
	return &Loop{
		scheduler:       NewScheduler(poll.Interval, rec.Tick),
		reconciler:      rec,
		pauseWhenHidden: poll.PauseWhenHidden,
		sources:         make(map[string]bool),
	}
}

// Reconciler returns the loop's reconciler.
func (l *Loop) Reconciler() *Reconciler { return l.reconciler }

// Start arms the loop. Polling begins now unless it pauses while hidden and nothing
// is visible yet.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	l.baseCtx = ctx
	l.started = true
	l.mu.Unlock()
	l.apply()
}

// Stop halts polling; pending results are discarded.
func (l *Loop) Stop() {
	l.applyMu.Lock()
	defer l.applyMu.Unlock()
	l.mu.Lock()
	l.started = false
	l.mu.Unlock()
	l.scheduler.Stop()
}

// Wait blocks until the last tick has returned after Stop.
func (l *Loop) Wait() {
	l.scheduler.Wait()
}

// SetVisible reports the visibility of the default source.
func (l *Loop) SetVisible(visible bool) {
	l.SetSourceVisible("default", visible)
}

// SetSourceVisible records whether source is visible and starts or stops polling.
func (l *Loop) SetSourceVisible(source string, visible bool) {
	l.mu.Lock()
	l.sources[source] = visible
	l.mu.Unlock()
	l.apply()
}

// RemoveSource forgets a source, e.g. a closed page.
func (l *Loop) RemoveSource(source string) {
	l.mu.Lock()
	delete(l.sources, source)
	l.mu.Unlock()
	l.apply()
}

// Visible reports whether any source is visible.
func (l *Loop) Visible() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visibleLocked()
}

// Running reports whether ticks are being scheduled.
func (l *Loop) Running() bool {
	return l.scheduler.Running()
}

// TriggerNow asks for an immediate tick, e.g. right after login.
func (l *Loop) TriggerNow() {
	l.scheduler.TriggerNow()
}

// ApplyConfig swaps interval, device policy and pause behaviour on hot reload.
func (l *Loop) ApplyConfig(cfg *config.Config) error {
	policy, err := NewDevicePolicy(cfg.Device)
	if err != nil {
		return err
	}
	l.reconciler.SetPolicy(policy, cfg.Device.StartPlayback)
	if cfg.Poll.Interval != l.scheduler.Interval() {
		log.Infof("poll interval changed to %s", cfg.Poll.Interval)
		l.scheduler.SetInterval(cfg.Poll.Interval)
	}
	l.mu.Lock()
	l.pauseWhenHidden = cfg.Poll.PauseWhenHidden
	l.mu.Unlock()
	l.apply()
	return nil
}

func (l *Loop) visibleLocked() bool {
	for _, visible := range l.sources {
		if visible {
			return true
		}
	}
	return false
}

func (l *Loop) apply() {
	l.applyMu.Lock()
	defer l.applyMu.Unlock()

	l.mu.Lock()
	shouldRun := l.started && (!l.pauseWhenHidden || l.visibleLocked())
	ctx := l.baseCtx
	l.mu.Unlock()

	running := l.scheduler.Running()
	switch {
	case shouldRun && !running:
		log.Debug("polling resumed")
		l.scheduler.Start(ctx)
	case !shouldRun && running:
		log.Debug("polling paused")
		l.scheduler.Stop()
	}
}
