package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/router-for-me/NowPlaying/internal/auth/pkce"
	"github.com/router-for-me/NowPlaying/internal/auth/spotify"
	"github.com/router-for-me/NowPlaying/internal/config"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeExchanger struct {
	mu            sync.Mutex
	lastState     string
	lastVerifier  string
	exchangeErr   error
	refreshErr    error
	refreshGate   chan struct{}
	refreshReturn string
	exchangeCalls atomic.Int32
	refreshCalls  atomic.Int32
	refreshSeq    atomic.Int32
}

func (f *fakeExchanger) GenerateAuthURL(state string, codes *pkce.Codes) (string, error) {
	f.mu.Lock()
	f.lastState = state
	f.mu.Unlock()
	q := url.Values{"state": {state}, "code_challenge": {codes.CodeChallenge}, "code_challenge_method": {"S256"}}
	return "https://accounts.example/authorize?" + q.Encode(), nil
}

func (f *fakeExchanger) ExchangeCodeForTokens(_ context.Context, code, verifier string) (*spotify.TokenData, error) {
	f.exchangeCalls.Add(1)
	f.mu.Lock()
	f.lastVerifier = verifier
	f.mu.Unlock()
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &spotify.TokenData{AccessToken: "AT1", RefreshToken: "RT1", ExpiresIn: 3600}, nil
}

func (f *fakeExchanger) RefreshTokens(_ context.Context, refreshToken string) (*spotify.TokenData, error) {
	f.refreshCalls.Add(1)
	if f.refreshGate != nil {
		<-f.refreshGate
	}
	if f.refreshErr != nil {
		return nil, spotify.NewAuthenticationError(spotify.ErrTokenRefreshFailed, f.refreshErr)
	}
	n := f.refreshSeq.Add(1)
	return &spotify.TokenData{
		AccessToken:  fmt.Sprintf("AT-refreshed-%d", n),
		RefreshToken: f.refreshReturn,
		ExpiresIn:    3600,
	}, nil
}

func (f *fakeExchanger) state() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastState
}

func loggedIn(t *testing.T, ex *fakeExchanger, store CredentialStore, clock *fakeClock) *Manager {
	t.Helper()
	m := NewManager(ex, store, WithClock(clock.Now))
	ctx := context.Background()
	if _, err := m.InitiateLogin(ctx); err != nil {
		t.Fatalf("InitiateLogin() error = %v", err)
	}
	if err := m.HandleRedirect(ctx, "C", ex.state()); err != nil {
		t.Fatalf("HandleRedirect() error = %v", err)
	}
	return m
}

func TestInitiateLoginStoresVerifierAndChallenge(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	m := NewManager(&fakeExchanger{}, store)

	authURL, err := m.InitiateLogin(context.Background())
	if err != nil {
		t.Fatalf("InitiateLogin() error = %v", err)
	}
	verifier, ok, _ := store.Get(context.Background(), KeyCodeVerifier)
	if !ok || len(verifier) != pkce.VerifierLength {
		t.Fatalf("verifier not stored: ok=%v len=%d", ok, len(verifier))
	}
	parsed, _ := url.Parse(authURL)
	if got := parsed.Query().Get("code_challenge"); got != pkce.DeriveChallenge(verifier) {
		t.Fatalf("challenge %q does not match stored verifier", got)
	}
	if _, ok, _ = store.Get(context.Background(), KeyRefreshToken); ok {
		t.Fatalf("refresh token must not exist before exchange")
	}
	if m.State() != StateAuthenticating {
		t.Fatalf("State() = %v, want authenticating", m.State())
	}
}

func TestHandleRedirectAgainstTokenEndpoint(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"access_token":"AT1","token_type":"Bearer","expires_in":3600,"refresh_token":"RT1"}`)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Spotify.ClientID = "client-123"
	cfg.Spotify.TokenURL = srv.URL
	exchanger := spotify.NewSpotifyAuthWithClient(cfg, srv.Client())

	clock := newFakeClock()
	store := NewMemoryStore()
	m := NewManager(exchanger, store, WithClock(clock.Now))
	ctx := context.Background()

	authURL, err := m.InitiateLogin(ctx)
	if err != nil {
		t.Fatalf("InitiateLogin() error = %v", err)
	}
	parsed, _ := url.Parse(authURL)
	if err = m.HandleRedirect(ctx, "C", parsed.Query().Get("state")); err != nil {
		t.Fatalf("HandleRedirect() error = %v", err)
	}

	tokens := m.Tokens()
	if tokens == nil || tokens.AccessToken != "AT1" || tokens.RefreshToken != "RT1" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
	if want := clock.Now().UnixMilli() + 3600000; tokens.ExpiresAtEpochMs() != want {
		t.Fatalf("ExpiresAtEpochMs() = %d, want %d", tokens.ExpiresAtEpochMs(), want)
	}
	if rt, _, _ := store.Get(ctx, KeyRefreshToken); rt != "RT1" {
		t.Fatalf("stored refresh token = %q", rt)
	}
	if _, ok, _ := store.Get(ctx, KeyCodeVerifier); ok {
		t.Fatalf("verifier must be deleted after the exchange")
	}
	if m.State() != StateAuthenticated {
		t.Fatalf("State() = %v", m.State())
	}

	token, err := m.EnsureValidToken(ctx)
	if err != nil || token != "AT1" {
		t.Fatalf("EnsureValidToken() = %q, %v", token, err)
	}
	if tokenCalls.Load() != 1 {
		t.Fatalf("token endpoint calls = %d, want 1", tokenCalls.Load())
	}
}

func TestHandleRedirectFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		prepare     func(m *Manager, ex *fakeExchanger, store *MemoryStore) string
		wantErr     error
		wantCalls   int32
		seedRefresh bool
	}{
		{
			name: "StateMismatch",
			prepare: func(m *Manager, ex *fakeExchanger, store *MemoryStore) string {
				_, _ = m.InitiateLogin(context.Background())
				return "forged"
			},
			wantErr: spotify.ErrInvalidState,
		},
		{
			name: "MissingVerifier",
			prepare: func(m *Manager, ex *fakeExchanger, store *MemoryStore) string {
				_, _ = m.InitiateLogin(context.Background())
				_ = store.Delete(context.Background(), KeyCodeVerifier)
				return ex.state()
			},
			wantErr: spotify.ErrTokenExchangeFailed,
		},
		{
			name: "ExchangeRejected",
			prepare: func(m *Manager, ex *fakeExchanger, store *MemoryStore) string {
				ex.exchangeErr = spotify.NewAuthenticationError(spotify.ErrTokenExchangeFailed, errors.New("invalid_grant"))
				_, _ = m.InitiateLogin(context.Background())
				return ex.state()
			},
			wantErr:     spotify.ErrTokenExchangeFailed,
			wantCalls:   1,
			seedRefresh: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ex := &fakeExchanger{}
			store := NewMemoryStore()
			if tt.seedRefresh {
				_ = store.Set(context.Background(), KeyRefreshToken, "RT-old")
			}
			m := NewManager(ex, store)
			var resets atomic.Int32
			m.OnReset(func(error) { resets.Add(1) })

			state := tt.prepare(m, ex, store)
			err := m.HandleRedirect(context.Background(), "C", state)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("HandleRedirect() error = %v, want %v", err, tt.wantErr)
			}
			if store.Len() != 0 {
				t.Fatalf("store should be empty after a failed login, has %d slots", store.Len())
			}
			if m.Tokens() != nil || m.State() != StateUnauthenticated {
				t.Fatalf("manager not reset: state=%v", m.State())
			}
			if resets.Load() != 1 {
				t.Fatalf("reset listeners called %d times", resets.Load())
			}
			if ex.exchangeCalls.Load() != tt.wantCalls {
				t.Fatalf("exchange calls = %d, want %d", ex.exchangeCalls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestHandleRedirectReplayRejected(t *testing.T) {
	t.Parallel()

	ex := &fakeExchanger{}
	clock := newFakeClock()
	m := loggedIn(t, ex, NewMemoryStore(), clock)

	err := m.HandleRedirect(context.Background(), "C", ex.state())
	if err == nil {
		t.Fatalf("second redirect with the same code must fail")
	}
	if ex.exchangeCalls.Load() != 1 {
		t.Fatalf("exchange calls = %d, want 1", ex.exchangeCalls.Load())
	}
}

func TestHandleAuthorizationError(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	m := NewManager(&fakeExchanger{}, store)
	_, _ = m.InitiateLogin(context.Background())

	err := m.HandleAuthorizationError(context.Background(), "access_denied", "user cancelled")
	if !errors.Is(err, spotify.ErrAuthorizationDenied) {
		t.Fatalf("error = %v", err)
	}
	if store.Len() != 0 || m.State() != StateUnauthenticated {
		t.Fatalf("credentials not cleared")
	}
}

func TestEnsureValidTokenCachedMakesNoCalls(t *testing.T) {
	t.Parallel()

	ex := &fakeExchanger{}
	clock := newFakeClock()
	m := loggedIn(t, ex, NewMemoryStore(), clock)

	clock.Advance(59*time.Minute - time.Second - RefreshMargin)
	for i := 0; i < 5; i++ {
		token, err := m.EnsureValidToken(context.Background())
		if err != nil || token != "AT1" {
			t.Fatalf("EnsureValidToken() = %q, %v", token, err)
		}
	}
	if ex.refreshCalls.Load() != 0 {
		t.Fatalf("refresh calls = %d, want 0", ex.refreshCalls.Load())
	}
}

func TestEnsureValidTokenRefreshesExactlyOnce(t *testing.T) {
	t.Parallel()

	ex := &fakeExchanger{refreshGate: make(chan struct{})}
	clock := newFakeClock()
	store := NewMemoryStore()
	m := loggedIn(t, ex, store, clock)
	before := m.Tokens().ExpiresAt

	clock.Advance(time.Hour - RefreshMargin)

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	errs := make([]error, 8)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.EnsureValidToken(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(ex.refreshGate)
	wg.Wait()

	for i := range tokens {
		if errs[i] != nil || tokens[i] != "AT-refreshed-1" {
			t.Fatalf("caller %d got %q, %v", i, tokens[i], errs[i])
		}
	}
	if ex.refreshCalls.Load() != 1 {
		t.Fatalf("refresh calls = %d, want 1", ex.refreshCalls.Load())
	}
	after := m.Tokens()
	if !after.ExpiresAt.After(before) {
		t.Fatalf("expiry did not increase: %v -> %v", before, after.ExpiresAt)
	}
	if after.RefreshToken != "RT1" {
		t.Fatalf("refresh token without rotation should be retained, got %q", after.RefreshToken)
	}
	if rt, _, _ := store.Get(context.Background(), KeyRefreshToken); rt != "RT1" {
		t.Fatalf("stored refresh token = %q", rt)
	}
}

func TestRefreshRotatesRefreshToken(t *testing.T) {
	t.Parallel()

	ex := &fakeExchanger{refreshReturn: "RT2"}
	clock := newFakeClock()
	store := NewMemoryStore()
	m := loggedIn(t, ex, store, clock)

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if rt, _, _ := store.Get(context.Background(), KeyRefreshToken); rt != "RT2" {
		t.Fatalf("stored refresh token = %q, want RT2", rt)
	}
}

func TestRefreshFailureFailsClosed(t *testing.T) {
	t.Parallel()

	ex := &fakeExchanger{}
	clock := newFakeClock()
	store := NewMemoryStore()
	m := loggedIn(t, ex, store, clock)

	var causes []error
	var mu sync.Mutex
	m.OnReset(func(cause error) {
		mu.Lock()
		causes = append(causes, cause)
		mu.Unlock()
	})

	ex.refreshErr = errors.New("invalid_grant")
	clock.Advance(2 * time.Hour)

	_, err := m.EnsureValidToken(context.Background())
	if !errors.Is(err, spotify.ErrTokenRefreshFailed) {
		t.Fatalf("error = %v, want ErrTokenRefreshFailed", err)
	}
	if m.Tokens() != nil || m.State() != StateUnauthenticated {
		t.Fatalf("manager kept credentials after refresh failure")
	}
	if store.Len() != 0 {
		t.Fatalf("store not cleared")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(causes) != 1 || !errors.Is(causes[0], spotify.ErrTokenRefreshFailed) {
		t.Fatalf("reset listener causes = %v", causes)
	}
}

func waitForRefreshCall(t *testing.T, ex *fakeExchanger) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for ex.refreshCalls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("refresh never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLogoutDuringRefreshStaysLoggedOut(t *testing.T) {
	t.Parallel()

	ex := &fakeExchanger{refreshGate: make(chan struct{}), refreshReturn: "RT2"}
	clock := newFakeClock()
	store := NewMemoryStore()
	m := loggedIn(t, ex, store, clock)
	clock.Advance(time.Hour)

	done := make(chan error, 1)
	go func() {
		_, err := m.EnsureValidToken(context.Background())
		done <- err
	}()
	waitForRefreshCall(t, ex)

	m.Logout(context.Background())
	close(ex.refreshGate)

	if err := <-done; !errors.Is(err, spotify.ErrNotAuthenticated) {
		t.Fatalf("EnsureValidToken() error = %v, want ErrNotAuthenticated", err)
	}
	if m.Authenticated() || m.State() != StateUnauthenticated {
		t.Fatalf("logout undone: authenticated=%v state=%v", m.Authenticated(), m.State())
	}
	if rt, ok, _ := store.Get(context.Background(), KeyRefreshToken); ok {
		t.Fatalf("refresh token %q written back after logout", rt)
	}
}

func TestStaleRefreshFailureKeepsNewLogin(t *testing.T) {
	t.Parallel()

	ex := &fakeExchanger{refreshGate: make(chan struct{}), refreshErr: errors.New("invalid_grant")}
	clock := newFakeClock()
	store := NewMemoryStore()
	m := loggedIn(t, ex, store, clock)
	clock.Advance(time.Hour)

	done := make(chan error, 1)
	go func() { done <- m.Refresh(context.Background()) }()
	waitForRefreshCall(t, ex)

	m.Logout(context.Background())
	ctx := context.Background()
	if _, err := m.InitiateLogin(ctx); err != nil {
		t.Fatalf("InitiateLogin() error = %v", err)
	}
	if err := m.HandleRedirect(ctx, "C2", ex.state()); err != nil {
		t.Fatalf("HandleRedirect() error = %v", err)
	}
	close(ex.refreshGate)

	if err := <-done; !errors.Is(err, spotify.ErrTokenRefreshFailed) {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !m.Authenticated() || m.State() != StateAuthenticated {
		t.Fatalf("new login wiped by stale refresh: state=%v", m.State())
	}
	if rt, _, _ := store.Get(ctx, KeyRefreshToken); rt != "RT1" {
		t.Fatalf("stored refresh token = %q, want RT1", rt)
	}
}

func TestHandleRedirectWithoutPendingLoginKeepsSession(t *testing.T) {
	t.Parallel()

	ex := &fakeExchanger{}
	store := NewMemoryStore()
	m := loggedIn(t, ex, store, newFakeClock())
	var resets atomic.Int32
	m.OnReset(func(error) { resets.Add(1) })

	err := m.HandleRedirect(context.Background(), "other-code", "other-state")
	if !errors.Is(err, spotify.ErrInvalidState) {
		t.Fatalf("HandleRedirect() error = %v, want ErrInvalidState", err)
	}
	if !m.Authenticated() || resets.Load() != 0 {
		t.Fatalf("session disturbed: authenticated=%v resets=%d", m.Authenticated(), resets.Load())
	}
	if rt, _, _ := store.Get(context.Background(), KeyRefreshToken); rt != "RT1" {
		t.Fatalf("stored refresh token = %q", rt)
	}
	if ex.exchangeCalls.Load() != 1 {
		t.Fatalf("exchange calls = %d, want 1", ex.exchangeCalls.Load())
	}
}

func TestEnsureValidTokenWithoutCredentials(t *testing.T) {
	t.Parallel()

	ex := &fakeExchanger{}
	m := NewManager(ex, NewMemoryStore())
	_, err := m.EnsureValidToken(context.Background())
	if !errors.Is(err, spotify.ErrNotAuthenticated) {
		t.Fatalf("error = %v", err)
	}
	if ex.refreshCalls.Load() != 0 {
		t.Fatalf("refresh attempted without a refresh token")
	}
	if m.State() != StateUnauthenticated {
		t.Fatalf("State() = %v", m.State())
	}
}

func TestRestoreFromStoredRefreshToken(t *testing.T) {
	t.Parallel()

	ex := &fakeExchanger{}
	store := NewMemoryStore()
	_ = store.Set(context.Background(), KeyRefreshToken, "RT-persisted")
	m := NewManager(ex, store, WithClock(newFakeClock().Now))

	if err := m.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !m.Authenticated() || m.State() != StateAuthenticated {
		t.Fatalf("session not restored")
	}
	if m.Tokens().RefreshToken != "RT-persisted" {
		t.Fatalf("refresh token = %q", m.Tokens().RefreshToken)
	}

	empty := NewManager(ex, NewMemoryStore())
	if err := empty.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() without credentials error = %v", err)
	}
	if empty.Authenticated() {
		t.Fatalf("nothing to restore but manager authenticated")
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	m := loggedIn(t, &fakeExchanger{}, store, newFakeClock())
	var resets atomic.Int32
	m.OnReset(func(cause error) {
		if cause != nil {
			t.Errorf("logout cause = %v, want nil", cause)
		}
		resets.Add(1)
	})

	m.Logout(context.Background())
	if store.Len() != 0 || m.Authenticated() || resets.Load() != 1 {
		t.Fatalf("logout incomplete: slots=%d authenticated=%v resets=%d", store.Len(), m.Authenticated(), resets.Load())
	}
}

func TestOnAuthenticatedListener(t *testing.T) {
	t.Parallel()

	ex := &fakeExchanger{}
	m := NewManager(ex, NewMemoryStore())
	var calls atomic.Int32
	m.OnAuthenticated(func() { calls.Add(1) })
	_, _ = m.InitiateLogin(context.Background())
	if err := m.HandleRedirect(context.Background(), "C", ex.state()); err != nil {
		t.Fatalf("HandleRedirect() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("authenticated listeners called %d times", calls.Load())
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	for state, want := range map[State]string{
		StateUnauthenticated: "unauthenticated",
		StateAuthenticating:  "authenticating",
		StateAuthenticated:   "authenticated",
		StateRefreshing:      "refreshing",
	} {
		if state.String() != want {
			t.Errorf("%d.String() = %q, want %q", state, state.String(), want)
		}
	}
}
