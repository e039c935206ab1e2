// Package auth owns the Spotify credential lifecycle: PKCE login, code exchange,
// proactive refresh and the fail-closed reset that returns the app to the logged-out
// state. Credentials persist through a pluggable CredentialStore.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/router-for-me/NowPlaying/internal/auth/pkce"
	"github.com/router-for-me/NowPlaying/internal/auth/spotify"
	"github.com/router-for-me/NowPlaying/internal/misc"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// RefreshMargin is how long before expiry an access token is refreshed proactively.
const RefreshMargin = 60 * time.Second

// refreshTimeout bounds a single refresh call. A refresh runs detached from the
// caller's context so a cancelled tick cannot abort it halfway.
const refreshTimeout = 30 * time.Second

var errSuperseded = errors.New("credentials were reset during the exchange")

// State is the authentication state of the Manager.
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// TokenSet is the in-memory credential triple. It is either absent or complete.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ExpiresAtEpochMs returns ExpiresAt as Unix milliseconds.
func (t *TokenSet) ExpiresAtEpochMs() int64 {
	return t.ExpiresAt.UnixMilli()
}

// fresh reports whether the access token can be used at now without refreshing.
func (t *TokenSet) fresh(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-RefreshMargin))
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager is the token state machine. All methods are safe for concurrent use.
type Manager struct {
	exchanger TokenExchanger
	store     CredentialStore

	mu           sync.Mutex
	state        State
	tokens       *TokenSet
	pendingState string
	// generation changes on every commit and reset, resets only on reset. A refresh
	// started under an older generation, or a login exchange started before a
	// reset, must not install or clear credentials.
	generation uint64
	resets     uint64
	// persistMu orders refresh-token writes against the deletes in Reset.
	persistMu sync.Mutex
	onReset   []func(cause error)
	onLogin   []func()

	refreshGroup singleflight.Group
	now          func() time.Time
}

// NewManager constructs a Manager. A nil store falls back to the registered store.
func NewManager(exchanger TokenExchanger, store CredentialStore, opts ...ManagerOption) *Manager {
	if store == nil {
		store = GetCredentialStore()
	}
	m := &Manager{
		exchanger: exchanger,
		store:     store,
		state:     StateUnauthenticated,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnReset registers a listener invoked after every credential reset. Listeners run
// synchronously on the goroutine that triggered the reset and must not block.
func (m *Manager) OnReset(fn func(cause error)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.onReset = append(m.onReset, fn)
	m.mu.Unlock()
}

// OnAuthenticated registers a listener invoked after a successful code exchange.
func (m *Manager) OnAuthenticated(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.onLogin = append(m.onLogin, fn)
	m.mu.Unlock()
}

// State returns the current authentication state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Authenticated reports whether a TokenSet is held in memory.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens != nil
}

// Tokens returns a copy of the current TokenSet, or nil.
func (m *Manager) Tokens() *TokenSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		return nil
	}
	cp := *m.tokens
	return &cp
}

// InitiateLogin starts a login attempt: a fresh verifier is persisted, a random
// state kept in memory, and the authorization URL returned for navigation.
func (m *Manager) InitiateLogin(ctx context.Context) (string, error) {
	codes, err := pkce.GeneratePKCECodes()
	if err != nil {
		return "", fmt.Errorf("spotify pkce generation failed: %w", err)
	}
	state, err := misc.GenerateRandomState()
	if err != nil {
		return "", fmt.Errorf("spotify state generation failed: %w", err)
	}
	authURL, err := m.exchanger.GenerateAuthURL(state, codes)
	if err != nil {
		return "", fmt.Errorf("spotify authorization url generation failed: %w", err)
	}
	if err = m.store.Set(ctx, KeyCodeVerifier, codes.CodeVerifier); err != nil {
		return "", fmt.Errorf("persist code verifier: %w", err)
	}

	m.mu.Lock()
	m.pendingState = state
	if m.tokens == nil {
		m.state = StateAuthenticating
	}
	m.mu.Unlock()

	log.Debug("spotify login initiated")
	return authURL, nil
}

// HandleRedirect completes a login with the code and state from the authorization
// redirect. The stored verifier is consumed whether or not the exchange succeeds.
// Any failure of a pending login resets all credentials; a redirect that arrives
// with no login pending is rejected and leaves the session untouched.
func (m *Manager) HandleRedirect(ctx context.Context, code, state string) error {
	m.mu.Lock()
	expected := m.pendingState
	m.pendingState = ""
	m.mu.Unlock()

	verifier, ok, errGet := m.store.Get(ctx, KeyCodeVerifier)
	if expected == "" && errGet == nil && (!ok || verifier == "") {
		// No login is in progress, so there is nothing to fail closed on.
		log.Warn("spotify redirect received with no pending login; ignoring")
		return spotify.NewAuthenticationError(spotify.ErrInvalidState, fmt.Errorf("no login pending"))
	}
	if errDel := m.store.Delete(ctx, KeyCodeVerifier); errDel != nil {
		log.Warnf("failed to delete code verifier: %v", errDel)
	}

	switch {
	case errGet != nil:
		err := spotify.NewAuthenticationError(spotify.ErrTokenExchangeFailed, fmt.Errorf("read code verifier: %w", errGet))
		m.Reset(ctx, err)
		return err
	case !ok || verifier == "":
		err := spotify.NewAuthenticationError(spotify.ErrTokenExchangeFailed, spotify.ErrMissingVerifier)
		m.Reset(ctx, err)
		return err
	case expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1:
		err := spotify.NewAuthenticationError(spotify.ErrInvalidState, fmt.Errorf("state mismatch"))
		m.Reset(ctx, err)
		return err
	}

	m.mu.Lock()
	resets := m.resets
	m.mu.Unlock()
	data, err := m.exchanger.ExchangeCodeForTokens(ctx, code, verifier)
	if err != nil {
		if !spotify.IsAuthenticationError(err) {
			err = spotify.NewAuthenticationError(spotify.ErrTokenExchangeFailed, err)
		}
		log.Errorf("spotify code exchange failed: %v", err)
		m.Reset(ctx, err)
		return err
	}

	if !m.commit(ctx, data, func() bool { return m.resets == resets }) {
		return spotify.NewAuthenticationError(spotify.ErrTokenExchangeFailed, errSuperseded)
	}

	m.mu.Lock()
	listeners := append([]func(){}, m.onLogin...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
	log.Info("spotify login completed")
	return nil
}

// HandleAuthorizationError handles a redirect that carried error= instead of a code.
func (m *Manager) HandleAuthorizationError(ctx context.Context, code, description string) error {
	err := spotify.NewAuthenticationError(spotify.ErrAuthorizationDenied, spotify.NewOAuthError(code, description, 0))
	if errDel := m.store.Delete(ctx, KeyCodeVerifier); errDel != nil {
		log.Warnf("failed to delete code verifier: %v", errDel)
	}
	m.mu.Lock()
	m.pendingState = ""
	m.mu.Unlock()
	log.Warnf("spotify authorization denied: %s", code)
	m.Reset(ctx, err)
	return err
}

// EnsureValidToken returns an access token that stays valid for at least
// RefreshMargin. A fresh cached token is returned without any network call;
// otherwise exactly one refresh runs, shared by all concurrent callers.
func (m *Manager) EnsureValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.tokens.fresh(m.now()) {
		token := m.tokens.AccessToken
		m.mu.Unlock()
		return token, nil
	}
	m.mu.Unlock()

	if err := m.refreshShared(ctx); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		return "", spotify.ErrNotAuthenticated
	}
	return m.tokens.AccessToken, nil
}

// Refresh exchanges the refresh token for a new access token. On failure every
// credential is cleared and reset listeners are notified.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.refreshShared(ctx)
}

// Restore rebuilds the session after a restart from a persisted refresh token.
// It is a no-op when tokens are already held or nothing is stored.
func (m *Manager) Restore(ctx context.Context) error {
	if m.Authenticated() {
		return nil
	}
	stored, ok, err := m.store.Get(ctx, KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("read refresh token: %w", err)
	}
	if !ok || stored == "" {
		log.Debug("no stored spotify refresh token")
		return nil
	}
	log.Info("restoring spotify session from stored refresh token")
	return m.refreshShared(ctx)
}

// Logout clears every credential at the user's request.
func (m *Manager) Logout(ctx context.Context) {
	log.Info("spotify logout requested")
	m.Reset(ctx, nil)
}

// Reset clears memory and both stored slots, then notifies reset listeners.
func (m *Manager) Reset(ctx context.Context, cause error) {
	m.mu.Lock()
	m.tokens = nil
	m.pendingState = ""
	m.state = StateUnauthenticated
	m.generation++
	m.resets++
	listeners := append([]func(error){}, m.onReset...)
	m.mu.Unlock()

	m.persistMu.Lock()
	for _, key := range []string{KeyCodeVerifier, KeyRefreshToken} {
		if err := m.store.Delete(context.WithoutCancel(ctx), key); err != nil {
			log.Warnf("failed to delete credential %s: %v", key, err)
		}
	}
	m.persistMu.Unlock()
	if cause != nil {
		log.Warnf("spotify credentials reset: %v", cause)
	}
	for _, fn := range listeners {
		fn(cause)
	}
}

func (m *Manager) refreshShared(ctx context.Context) error {
	ch := m.refreshGroup.DoChan("refresh", func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return nil, m.refresh(refreshCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	gen := m.generation
	previous := m.state
	refreshToken := ""
	if m.tokens != nil {
		refreshToken = m.tokens.RefreshToken
	}
	m.state = StateRefreshing
	m.mu.Unlock()

	if refreshToken == "" {
		stored, ok, err := m.store.Get(ctx, KeyRefreshToken)
		if err != nil {
			m.restoreState(previous)
			return spotify.NewAuthenticationError(spotify.ErrNotAuthenticated, fmt.Errorf("read refresh token: %w", err))
		}
		if ok {
			refreshToken = stored
		}
	}
	if refreshToken == "" {
		m.restoreState(previous)
		return spotify.ErrNotAuthenticated
	}

	data, err := m.exchanger.RefreshTokens(ctx, refreshToken)
	if err != nil {
		if !errors.Is(err, spotify.ErrTokenRefreshFailed) {
			err = spotify.NewAuthenticationError(spotify.ErrTokenRefreshFailed, err)
		}
		m.resetIfCurrent(ctx, gen, err)
		return err
	}
	if data.RefreshToken == "" {
		data.RefreshToken = refreshToken
	}
	if !m.commit(ctx, data, func() bool { return m.generation == gen }) {
		log.Debug("discarding spotify refresh result; credentials changed while it was in flight")
		if !m.Authenticated() {
			return spotify.ErrNotAuthenticated
		}
	}
	return nil
}

func (m *Manager) currentGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// resetIfCurrent resets only when no commit or reset happened since gen was read.
func (m *Manager) resetIfCurrent(ctx context.Context, gen uint64, cause error) {
	if m.currentGeneration() != gen {
		log.Debugf("spotify credentials already replaced; not resetting for: %v", cause)
		return
	}
	m.Reset(ctx, cause)
}

func (m *Manager) restoreState(previous State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRefreshing {
		return
	}
	if previous == StateRefreshing {
		previous = StateUnauthenticated
	}
	if m.tokens == nil && previous == StateAuthenticated {
		previous = StateUnauthenticated
	}
	m.state = previous
}

// commit installs a complete TokenSet and persists the refresh token when current,
// evaluated under m.mu, still holds. It reports whether it installed.
func (m *Manager) commit(ctx context.Context, data *spotify.TokenData, current func() bool) bool {
	tokens := &TokenSet{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		ExpiresAt:    m.now().Add(data.Lifetime()),
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	if !current() {
		m.mu.Unlock()
		return false
	}
	m.tokens = tokens
	m.state = StateAuthenticated
	m.generation++
	m.mu.Unlock()

	if err := m.store.Set(context.WithoutCancel(ctx), KeyRefreshToken, data.RefreshToken); err != nil {
		log.Warnf("failed to persist refresh token: %v", err)
	}
	log.WithField("expires_at", tokens.ExpiresAt.Format(time.RFC3339)).Debug("spotify tokens updated")
	return true
}
