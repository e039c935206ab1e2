package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/router-for-me/NowPlaying/internal/player"
	"github.com/router-for-me/NowPlaying/internal/view"
	log "github.com/sirupsen/logrus"
)

// defaultRateLimitBackoff applies when a 429 carries no Retry-After.
const defaultRateLimitBackoff = 5 * time.Second

// AuthState reports whether a token set is held.
type AuthState interface {
	Authenticated() bool
}

// Playback is the subset of the player client the reconciler drives.
type Playback interface {
	GetPlaybackState(ctx context.Context) (*player.Snapshot, error)
	ListDevices(ctx context.Context) ([]player.Device, error)
	TransferPlayback(ctx context.Context, deviceID string, play bool) error
}

// LyricsSource looks up lyrics; "" means none.
type LyricsSource interface {
	Lookup(ctx context.Context, artist, title string) (string, error)
}

// Reconciler performs one reconciliation tick at a time.
type Reconciler struct {
	auth     AuthState
	player   Playback
	renderer view.Renderer
	now      func() time.Time

	mu            sync.Mutex
	policy        DevicePolicy
	startPlayback bool
	lyrics        LyricsSource
	backoffUntil  time.Time
	lastSnap      *player.Snapshot
	lyricsTrack   string
	lyricsText    string
}

// NewReconciler wires a reconciler. policy defaults to the type policy.
func NewReconciler(auth AuthState, playback Playback, renderer view.Renderer, policy DevicePolicy, startPlayback bool) *Reconciler {
	if policy == nil {
		policy = TypePolicy{Types: []string{"Computer", "Web Player"}}
	}
	return &Reconciler{
		auth:          auth,
		player:        playback,
		renderer:      renderer,
		now:           time.Now,
		policy:        policy,
		startPlayback: startPlayback,
	}
}

// SetPolicy swaps the device policy and transfer behaviour.
func (r *Reconciler) SetPolicy(policy DevicePolicy, startPlayback bool) {
	if policy == nil {
		return
	}
	r.mu.Lock()
	r.policy = policy
	r.startPlayback = startPlayback
	r.mu.Unlock()
}

// SetLyrics enables lyrics lookup; nil disables it.
func (r *Reconciler) SetLyrics(source LyricsSource) {
	r.mu.Lock()
	r.lyrics = source
	r.lyricsTrack, r.lyricsText = "", ""
	r.mu.Unlock()
}

// RenderLoggedOut forgets playback state and renders the login control. It is the
// credential reset listener.
func (r *Reconciler) RenderLoggedOut() {
	r.mu.Lock()
	r.lastSnap = nil
	r.backoffUntil = time.Time{}
	r.lyricsTrack, r.lyricsText = "", ""
	r.mu.Unlock()
	r.renderer.Render(view.Project(nil, view.StatusLoggedOut))
}

// Tick runs one reconciliation: read playback, and when no device is active pick one,
// transfer playback to it and read playback once more. Every remote call is sequential.
func (r *Reconciler) Tick(ctx context.Context) {
	logger := log.WithField("request_id", TickID(ctx))

	if !r.auth.Authenticated() {
		r.emit(ctx, nil, view.StatusLoggedOut)
		return
	}
	if until := r.backoff(); r.now().Before(until) {
		logger.Debugf("skipping tick, rate limited until %s", until.Format(time.RFC3339))
		return
	}

	snap, err := r.player.GetPlaybackState(ctx)
	if err != nil {
		r.handleError(ctx, err)
		return
	}
	if snap.HasActiveDevice() {
		r.emit(ctx, snap, view.StatusPlayback)
		return
	}

	devices, err := r.player.ListDevices(ctx)
	if err != nil {
		r.handleError(ctx, err)
		return
	}
	policy, startPlayback := r.currentPolicy()
	candidate, ok := policy.Select(devices)
	if !ok {
		logger.Debugf("no device matched the %s policy among %d devices", policy.Name(), len(devices))
		r.emit(ctx, snap, view.StatusNoActiveDevice)
		return
	}
	if candidate.IsActive {
		r.emit(ctx, snap, view.StatusPlayback)
		return
	}

	logger.Infof("transferring playback to %s (%s)", candidate.Name, candidate.Type)
	if err = r.player.TransferPlayback(ctx, candidate.ID, startPlayback); err != nil {
		if player.IsReauthenticationRequired(err) || ctx.Err() != nil {
			return
		}
		logger.Warnf("playback transfer failed: %v", err)
	}

	snap, err = r.player.GetPlaybackState(ctx)
	if err != nil {
		r.handleError(ctx, err)
		return
	}
	r.emit(ctx, snap, view.StatusPlayback)
}

func (r *Reconciler) handleError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	logger := log.WithField("request_id", TickID(ctx))
	switch {
	case player.IsReauthenticationRequired(err):
		// The credential reset already rendered the logged-out view.
		logger.Debugf("tick aborted: %v", err)
	case errors.Is(err, player.ErrForbidden):
		logger.Warnf("spotify refused playback access: %v", err)
		r.emit(ctx, nil, view.StatusPremiumRequired)
	case errors.Is(err, player.ErrRateLimited):
		wait := player.RetryAfter(err)
		if wait <= 0 {
			wait = defaultRateLimitBackoff
		}
		r.mu.Lock()
		r.backoffUntil = r.now().Add(wait)
		r.mu.Unlock()
		logger.Warnf("spotify rate limited, backing off for %s", wait)
		r.emit(ctx, r.last(), view.StatusRateLimited)
	default:
		logger.Warnf("playback check failed: %v", err)
		r.emit(ctx, r.last(), view.StatusError)
	}
}

// emit renders unless the tick has been cancelled, so a stopped loop never overwrites
// newer state with a stale response.
func (r *Reconciler) emit(ctx context.Context, snap *player.Snapshot, status view.Status) {
	if ctx.Err() != nil {
		log.WithField("request_id", TickID(ctx)).Debug("discarding stale render")
		return
	}
	v := view.Project(snap, status)
	if status == view.StatusPlayback {
		r.mu.Lock()
		r.lastSnap = snap
		r.mu.Unlock()
		v.Lyrics = r.lyricsFor(ctx, snap)
	}
	if ctx.Err() != nil {
		return
	}
	r.renderer.Render(v)
}

func (r *Reconciler) lyricsFor(ctx context.Context, snap *player.Snapshot) string {
	r.mu.Lock()
	source := r.lyrics
	if source == nil || snap == nil || snap.TrackID == "" || len(snap.ArtistNames) == 0 {
		r.mu.Unlock()
		return ""
	}
	if r.lyricsTrack == snap.TrackID {
		text := r.lyricsText
		r.mu.Unlock()
		return text
	}
	r.mu.Unlock()

	text, err := source.Lookup(ctx, snap.ArtistNames[0], snap.TrackName)
	if err != nil {
		log.WithField("request_id", TickID(ctx)).Debugf("lyrics lookup failed: %v", err)
		text = ""
	}
	r.mu.Lock()
	r.lyricsTrack, r.lyricsText = snap.TrackID, text
	r.mu.Unlock()
	return text
}

func (r *Reconciler) currentPolicy() (DevicePolicy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.policy, r.startPlayback
}

func (r *Reconciler) backoff() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backoffUntil
}

func (r *Reconciler) last() *player.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSnap
}
