package auth

import (
	"context"
	"io"

	"github.com/router-for-me/NowPlaying/internal/auth/pkce"
	"github.com/router-for-me/NowPlaying/internal/auth/spotify"
)

// Credential slot names. Only these two keys are ever written to a CredentialStore.
const (
	// KeyCodeVerifier holds the PKCE verifier between the authorize redirect and the
	// code exchange. It is deleted as soon as the redirect is handled.
	KeyCodeVerifier = "codeVerifier"
	// KeyRefreshToken holds the long-lived refresh token.
	KeyRefreshToken = "refreshToken"
)

// CredentialStore persists string slots across restarts. Implementations must be safe
// for concurrent use. Get reports ok=false for a missing key without error.
type CredentialStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// TokenExchanger performs the accounts-service calls on behalf of the Manager.
// *spotify.SpotifyAuth implements it.
type TokenExchanger interface {
	GenerateAuthURL(state string, codes *pkce.Codes) (string, error)
	ExchangeCodeForTokens(ctx context.Context, code, codeVerifier string) (*spotify.TokenData, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*spotify.TokenData, error)
}

// LoginOptions captures knobs for the command-line login flow.
type LoginOptions struct {
	// NoBrowser prints the authorization URL instead of launching a browser.
	NoBrowser bool
	// CallbackPort overrides the port the local callback server listens on. The
	// redirect URI sent to Spotify is unchanged, which suits port forwarding.
	CallbackPort int
	// Prompt reads a pasted callback URL when the redirect cannot reach the server.
	Prompt func(prompt string) (string, error)
	// Out receives user-facing instructions; os.Stdout when nil.
	Out io.Writer
}
