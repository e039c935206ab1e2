package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/router-for-me/NowPlaying/internal/config"
	"github.com/router-for-me/NowPlaying/internal/player"
	"github.com/router-for-me/NowPlaying/internal/view"
)

type fakeAuth struct{ ok atomic.Bool }

func (a *fakeAuth) Authenticated() bool { return a.ok.Load() }

func newAuth(ok bool) *fakeAuth {
	a := &fakeAuth{}
	a.ok.Store(ok)
	return a
}

type stateResult struct {
	snap *player.Snapshot
	err  error
}

type fakePlayer struct {
	mu          sync.Mutex
	states      []stateResult
	devices     []player.Device
	devicesErr  error
	transferErr error
	calls       []string
	transfers   []string
	plays       []bool
	onState     func(ctx context.Context)
}

func (p *fakePlayer) GetPlaybackState(ctx context.Context) (*player.Snapshot, error) {
	p.mu.Lock()
	p.calls = append(p.calls, "state")
	var res stateResult
	if len(p.states) > 0 {
		res = p.states[0]
		if len(p.states) > 1 {
			p.states = p.states[1:]
		}
	}
	hook := p.onState
	p.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	return res.snap, res.err
}

func (p *fakePlayer) ListDevices(context.Context) ([]player.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "devices")
	return p.devices, p.devicesErr
}

func (p *fakePlayer) TransferPlayback(_ context.Context, id string, play bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "transfer:"+id)
	p.transfers = append(p.transfers, id)
	p.plays = append(p.plays, play)
	return p.transferErr
}

func (p *fakePlayer) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type recorder struct {
	mu    sync.Mutex
	views []view.View
}

func (r *recorder) Render(v view.View) {
	r.mu.Lock()
	r.views = append(r.views, v)
	r.mu.Unlock()
}

func (r *recorder) all() []view.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]view.View(nil), r.views...)
}

func activeSnap(track string) *player.Snapshot {
	return &player.Snapshot{
		IsPlaying: true, DeviceID: "desk", DeviceName: "Desk", DeviceIsActive: true,
		TrackID: track, TrackName: "Song " + track, ArtistNames: []string{"Artist"}, AlbumArtURL: "https://img/" + track,
	}
}

func equalCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestTickUnauthenticatedRendersLoginWithoutCalls(t *testing.T) {
	t.Parallel()

	p := &fakePlayer{}
	rec := &recorder{}
	NewReconciler(newAuth(false), p, rec, nil, true).Tick(context.Background())

	if len(p.callLog()) != 0 {
		t.Fatalf("unexpected remote calls %v", p.callLog())
	}
	views := rec.all()
	if len(views) != 1 || views[0].LoggedIn || views[0].StatusText != view.TextLogin {
		t.Fatalf("views = %+v", views)
	}
}

func TestTickActiveDeviceRendersImmediately(t *testing.T) {
	t.Parallel()

	p := &fakePlayer{states: []stateResult{{snap: activeSnap("t1")}}}
	rec := &recorder{}
	NewReconciler(newAuth(true), p, rec, nil, true).Tick(context.Background())

	if got := p.callLog(); !equalCalls(got, []string{"state"}) {
		t.Fatalf("calls = %v", got)
	}
	views := rec.all()
	if len(views) != 1 || views[0].Title != "Song t1" || views[0].StatusText != "Now Playing on Desk" {
		t.Fatalf("views = %+v", views)
	}
}

// Inactive device: list devices, transfer to the first Computer, re-fetch once and
// render the re-fetched track.
func TestTickTransfersToPreferredDevice(t *testing.T) {
	t.Parallel()

	inactive := activeSnap("old")
	inactive.DeviceIsActive = false
	p := &fakePlayer{
		states: []stateResult{{snap: inactive}, {snap: activeSnap("new")}},
		devices: []player.Device{
			{ID: "phone", Name: "Phone", Type: "Smartphone"},
			{ID: "desk", Name: "Desk", Type: "Computer"},
			{ID: "desk2", Name: "Desk 2", Type: "Computer"},
		},
	}
	rec := &recorder{}
	NewReconciler(newAuth(true), p, rec, TypePolicy{Types: []string{"Computer"}}, true).Tick(context.Background())

	want := []string{"state", "devices", "transfer:desk", "state"}
	if got := p.callLog(); !equalCalls(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if len(p.plays) != 1 || !p.plays[0] {
		t.Fatalf("transfer play flags = %v", p.plays)
	}
	views := rec.all()
	if len(views) != 1 {
		t.Fatalf("views = %+v", views)
	}
	if v := views[0]; v.Title != "Song new" || v.Artists != "Artist" || v.ArtworkURL != "https://img/new" {
		t.Fatalf("rendered %+v", v)
	}
}

func TestTickNoCandidate(t *testing.T) {
	t.Parallel()

	p := &fakePlayer{devices: []player.Device{{ID: "tv", Name: "TV", Type: "TV"}}}
	rec := &recorder{}
	NewReconciler(newAuth(true), p, rec, TypePolicy{Types: []string{"Computer"}}, true).Tick(context.Background())

	if got := p.callLog(); !equalCalls(got, []string{"state", "devices"}) {
		t.Fatalf("calls = %v", got)
	}
	views := rec.all()
	if len(views) != 1 || views[0].StatusText != view.TextNoActiveDevice {
		t.Fatalf("views = %+v", views)
	}
}

func TestTickCandidateAlreadyActiveSkipsTransfer(t *testing.T) {
	t.Parallel()

	p := &fakePlayer{devices: []player.Device{{ID: "desk", Name: "Desk", Type: "Computer", IsActive: true}}}
	rec := &recorder{}
	NewReconciler(newAuth(true), p, rec, nil, true).Tick(context.Background())

	if got := p.callLog(); !equalCalls(got, []string{"state", "devices"}) {
		t.Fatalf("calls = %v", got)
	}
	if views := rec.all(); len(views) != 1 || views[0].StatusText != view.TextNoPlayback {
		t.Fatalf("views = %+v", views)
	}
}

func TestTickTransferFailureStillRefetches(t *testing.T) {
	t.Parallel()

	p := &fakePlayer{
		states:      []stateResult{{}, {snap: activeSnap("t2")}},
		devices:     []player.Device{{ID: "desk", Name: "Desk", Type: "Computer"}},
		transferErr: &player.APIError{Kind: player.KindTransient, StatusCode: 502},
	}
	rec := &recorder{}
	NewReconciler(newAuth(true), p, rec, nil, false).Tick(context.Background())

	if got := p.callLog(); !equalCalls(got, []string{"state", "devices", "transfer:desk", "state"}) {
		t.Fatalf("calls = %v", got)
	}
	if p.plays[0] {
		t.Fatalf("start-playback disabled but play=true sent")
	}
	if views := rec.all(); len(views) != 1 || views[0].TrackID != "t2" {
		t.Fatalf("views = %+v", views)
	}
}

func TestTickTransferToVanishedDeviceRereadsState(t *testing.T) {
	t.Parallel()

	p := &fakePlayer{
		states:      []stateResult{{}, {}},
		devices:     []player.Device{{ID: "desk", Name: "Desk", Type: "Computer"}},
		transferErr: &player.APIError{Kind: player.KindNoActiveDevice, StatusCode: 404},
	}
	rec := &recorder{}
	NewReconciler(newAuth(true), p, rec, nil, true).Tick(context.Background())

	if got := p.callLog(); !equalCalls(got, []string{"state", "devices", "transfer:desk", "state"}) {
		t.Fatalf("calls = %v", got)
	}
	if views := rec.all(); len(views) != 1 || views[0].StatusText != view.TextNoPlayback {
		t.Fatalf("views = %+v", views)
	}
}

func TestTickErrorHandling(t *testing.T) {
	t.Parallel()

	reauth := fmt.Errorf("%w: token gone", player.ErrReauthenticationRequired)
	tests := []struct {
		name       string
		err        error
		wantRender bool
		wantStatus string
	}{
		{name: "Reauthenticate", err: reauth},
		{name: "Unauthorized", err: &player.APIError{Kind: player.KindUnauthorized, StatusCode: 401}},
		{name: "Forbidden", err: &player.APIError{Kind: player.KindForbidden, StatusCode: 403}, wantRender: true, wantStatus: view.TextPremiumRequired},
		{name: "Transient", err: &player.APIError{Kind: player.KindTransient, StatusCode: 500}, wantRender: true, wantStatus: view.TextError},
		{name: "PlainError", err: errors.New("boom"), wantRender: true, wantStatus: view.TextError},
		{name: "NotFound", err: &player.APIError{Kind: player.KindTransient, StatusCode: 404}, wantRender: true, wantStatus: view.TextError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &fakePlayer{states: []stateResult{{err: tt.err}}}
			rec := &recorder{}
			NewReconciler(newAuth(true), p, rec, nil, true).Tick(context.Background())

			if got := p.callLog(); !equalCalls(got, []string{"state"}) {
				t.Fatalf("calls = %v", got)
			}
			views := rec.all()
			if !tt.wantRender {
				if len(views) != 0 {
					t.Fatalf("expected silent abort, got %+v", views)
				}
				return
			}
			if len(views) != 1 || views[0].StatusText != tt.wantStatus {
				t.Fatalf("views = %+v", views)
			}
		})
	}
}

func TestTickRateLimitBackoff(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &fakePlayer{states: []stateResult{
		{err: &player.APIError{Kind: player.KindRateLimited, StatusCode: 429, RetryAfter: 30 * time.Second}},
		{snap: activeSnap("t1")},
	}}
	rec := &recorder{}
	r := NewReconciler(newAuth(true), p, rec, nil, true)
	r.now = func() time.Time { return now }

	r.Tick(context.Background())
	if views := rec.all(); len(views) != 1 || views[0].StatusText != view.TextRateLimited {
		t.Fatalf("views = %+v", views)
	}

	now = now.Add(10 * time.Second)
	r.Tick(context.Background())
	if got := p.callLog(); len(got) != 1 {
		t.Fatalf("tick during backoff made calls: %v", got)
	}

	now = now.Add(25 * time.Second)
	r.Tick(context.Background())
	if got := p.callLog(); len(got) != 2 {
		t.Fatalf("tick after backoff made no call: %v", got)
	}
	if views := rec.all(); len(views) != 2 || views[1].TrackID != "t1" {
		t.Fatalf("views = %+v", views)
	}
}

func TestTickDiscardsStaleResponse(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := &fakePlayer{
		states:  []stateResult{{snap: activeSnap("t1")}},
		onState: func(context.Context) { cancel() },
	}
	rec := &recorder{}
	NewReconciler(newAuth(true), p, rec, nil, true).Tick(ctx)

	if views := rec.all(); len(views) != 0 {
		t.Fatalf("stale response rendered: %+v", views)
	}
}

func TestRenderLoggedOut(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	r := NewReconciler(newAuth(true), &fakePlayer{}, rec, nil, true)
	r.RenderLoggedOut()
	if views := rec.all(); len(views) != 1 || views[0].LoggedIn {
		t.Fatalf("views = %+v", views)
	}
}

type fakeLyrics struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeLyrics) Lookup(_ context.Context, artist, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "lyrics for " + title + " by " + artist, nil
}

func TestTickLyricsLookedUpOncePerTrack(t *testing.T) {
	t.Parallel()

	p := &fakePlayer{states: []stateResult{{snap: activeSnap("t1")}}}
	rec := &recorder{}
	lyrics := &fakeLyrics{}
	r := NewReconciler(newAuth(true), p, rec, nil, true)
	r.SetLyrics(lyrics)

	r.Tick(context.Background())
	r.Tick(context.Background())
	if lyrics.calls != 1 {
		t.Fatalf("lyrics calls = %d, want 1", lyrics.calls)
	}
	views := rec.all()
	if len(views) != 2 || views[1].Lyrics != "lyrics for Song t1 by Artist" {
		t.Fatalf("views = %+v", views)
	}
}

func TestTickLyricsFailureDoesNotFailTick(t *testing.T) {
	t.Parallel()

	p := &fakePlayer{states: []stateResult{{snap: activeSnap("t1")}}}
	rec := &recorder{}
	r := NewReconciler(newAuth(true), p, rec, nil, true)
	r.SetLyrics(&fakeLyrics{err: errors.New("down")})

	r.Tick(context.Background())
	if views := rec.all(); len(views) != 1 || views[0].Lyrics != "" || views[0].TrackID != "t1" {
		t.Fatalf("views = %+v", views)
	}
}

func TestDevicePolicies(t *testing.T) {
	t.Parallel()

	devices := []player.Device{
		{ID: "", Name: "Restricted", Type: "Computer"},
		{ID: "phone", Name: "Pixel Phone", Type: "Smartphone"},
		{ID: "web", Name: "Web Player (Chrome)", Type: "Web Player"},
		{ID: "desk", Name: "Desk", Type: "Computer"},
	}
	tests := []struct {
		name   string
		cfg    config.DeviceConfig
		wantID string
		wantOK bool
	}{
		{name: "TypeDefaultOrder", cfg: config.DeviceConfig{Policy: "type"}, wantID: "desk", wantOK: true},
		{name: "TypePreference", cfg: config.DeviceConfig{Policy: "type", Types: []string{"web player", "computer"}}, wantID: "web", wantOK: true},
		{name: "TypeNoMatch", cfg: config.DeviceConfig{Policy: "type", Types: []string{"TV"}}},
		{name: "Name", cfg: config.DeviceConfig{Policy: "name", NameHint: "PHONE"}, wantID: "phone", wantOK: true},
		{name: "NameNoMatch", cfg: config.DeviceConfig{Policy: "name", NameHint: "speaker"}},
		{name: "First", cfg: config.DeviceConfig{Policy: "first"}, wantID: "phone", wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			policy, err := NewDevicePolicy(tt.cfg)
			if err != nil {
				t.Fatalf("NewDevicePolicy() error = %v", err)
			}
			got, ok := policy.Select(devices)
			if ok != tt.wantOK || got.ID != tt.wantID {
				t.Fatalf("Select() = %+v, %v; want %q, %v", got, ok, tt.wantID, tt.wantOK)
			}
		})
	}

	if _, err := NewDevicePolicy(config.DeviceConfig{Policy: "name"}); err == nil {
		t.Fatalf("name policy without hint must fail")
	}
	if _, err := NewDevicePolicy(config.DeviceConfig{Policy: "random"}); err == nil {
		t.Fatalf("unknown policy must fail")
	}
	if _, ok := (FirstPolicy{}).Select(nil); ok {
		t.Fatalf("empty device list must not select")
	}
}
