package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/router-for-me/NowPlaying/internal/auth/pkce"
	"github.com/router-for-me/NowPlaying/internal/config"
	"github.com/router-for-me/NowPlaying/internal/util"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// TokenData holds the result of a successful token endpoint call.
type TokenData struct {
	// AccessToken is the bearer credential for api.spotify.com.
	AccessToken string `json:"access_token"`
	// RefreshToken is empty when the provider did not rotate it.
	RefreshToken string `json:"refresh_token,omitempty"`
	// TokenType is normally "Bearer".
	TokenType string `json:"token_type"`
	// Scope is the space-separated list of granted scopes.
	Scope string `json:"scope,omitempty"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// Lifetime returns ExpiresIn as a duration.
func (t *TokenData) Lifetime() time.Duration {
	return time.Duration(t.ExpiresIn) * time.Second
}

// SpotifyAuth handles the Spotify accounts protocol for a public (secretless) client.
// It builds the PKCE authorization URL and performs the authorization-code and
// refresh-token grants against the token endpoint.
type SpotifyAuth struct {
	httpClient *http.Client
	conf       *oauth2.Config
}

// NewSpotifyAuth creates a new Spotify authentication service from the application
// configuration. The outbound client honours proxy-url.
func NewSpotifyAuth(cfg *config.Config) *SpotifyAuth {
	httpClient := util.SetProxy(&cfg.SDKConfig, &http.Client{Timeout: 30 * time.Second})
	return NewSpotifyAuthWithClient(cfg, httpClient)
}

// NewSpotifyAuthWithClient creates a Spotify authentication service that uses the given
// HTTP client for token endpoint calls.
func NewSpotifyAuthWithClient(cfg *config.Config, httpClient *http.Client) *SpotifyAuth {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &SpotifyAuth{
		httpClient: httpClient,
		conf: &oauth2.Config{
			ClientID:    cfg.Spotify.ClientID,
			RedirectURL: cfg.Spotify.RedirectURI,
			Scopes:      append([]string(nil), cfg.Spotify.Scopes...),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.Spotify.AuthURL,
				TokenURL:  cfg.Spotify.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// GenerateAuthURL creates the authorization URL carrying the S256 challenge.
//
// Parameters:
//   - state: A random state parameter for CSRF protection
//   - pkceCodes: The PKCE codes for this login attempt
//
// Returns:
//   - string: The complete authorization URL
//   - error: An error if PKCE codes are missing
func (o *SpotifyAuth) GenerateAuthURL(state string, pkceCodes *pkce.Codes) (string, error) {
	if pkceCodes == nil || pkceCodes.CodeChallenge == "" {
		return "", fmt.Errorf("PKCE codes are required")
	}
	return o.conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("code_challenge", pkceCodes.CodeChallenge),
	), nil
}

// RedirectURI returns the registered redirect URI sent with every grant.
func (o *SpotifyAuth) RedirectURI() string {
	return o.conf.RedirectURL
}

// ExchangeCodeForTokens exchanges an authorization code for tokens using the stored
// code verifier (grant_type=authorization_code).
//
// Parameters:
//   - ctx: The context for the request
//   - code: The authorization code received on the redirect
//   - codeVerifier: The verifier whose challenge was sent on the authorize request
//
// Returns:
//   - *TokenData: The issued tokens
//   - error: An ErrTokenExchangeFailed authentication error on any failure
func (o *SpotifyAuth) ExchangeCodeForTokens(ctx context.Context, code, codeVerifier string) (*TokenData, error) {
	if strings.TrimSpace(code) == "" {
		return nil, NewAuthenticationError(ErrTokenExchangeFailed, fmt.Errorf("authorization code is empty"))
	}
	if strings.TrimSpace(codeVerifier) == "" {
		return nil, NewAuthenticationError(ErrTokenExchangeFailed, ErrMissingVerifier)
	}

	tok, err := o.conf.Exchange(o.clientContext(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, NewAuthenticationError(ErrTokenExchangeFailed, translateTokenError(err))
	}
	data := tokenDataFrom(tok)
	if data.RefreshToken == "" {
		return nil, NewAuthenticationError(ErrTokenExchangeFailed, fmt.Errorf("token response missing refresh_token"))
	}
	log.Debugf("spotify code exchange succeeded, expires_in=%ds scope=%q", data.ExpiresIn, data.Scope)
	return data, nil
}

// RefreshTokens obtains a new access token with a refresh token
// (grant_type=refresh_token). When the response carries no new refresh token the
// returned TokenData keeps the one passed in.
//
// Parameters:
//   - ctx: The context for the request
//   - refreshToken: The current refresh token
//
// Returns:
//   - *TokenData: The refreshed tokens
//   - error: An ErrTokenRefreshFailed authentication error on any failure
func (o *SpotifyAuth) RefreshTokens(ctx context.Context, refreshToken string) (*TokenData, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, NewAuthenticationError(ErrTokenRefreshFailed, fmt.Errorf("refresh token is empty"))
	}

	source := o.conf.TokenSource(o.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := source.Token()
	if err != nil {
		return nil, NewAuthenticationError(ErrTokenRefreshFailed, translateTokenError(err))
	}
	data := tokenDataFrom(tok)
	if data.RefreshToken == "" {
		data.RefreshToken = refreshToken
	}
	log.Debugf("spotify token refresh succeeded, expires_in=%ds rotated=%t", data.ExpiresIn, data.RefreshToken != refreshToken)
	return data, nil
}

// clientContext hands the configured HTTP client to x/oauth2.
func (o *SpotifyAuth) clientContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

func tokenDataFrom(tok *oauth2.Token) *TokenData {
	data := &TokenData{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		data.Scope = scope
	}
	if data.ExpiresIn <= 0 && !tok.Expiry.IsZero() {
		data.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second) / time.Second)
	}
	return data
}

// translateTokenError converts x/oauth2 retrieve errors into OAuthError values.
func translateTokenError(err error) error {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return err
	}
	status := 0
	if rErr.Response != nil {
		status = rErr.Response.StatusCode
	}
	code := rErr.ErrorCode
	if code == "" {
		code = "token_endpoint_error"
	}
	description := rErr.ErrorDescription
	if description == "" && status != 0 {
		description = fmt.Sprintf("token endpoint returned status %d", status)
	}
	return NewOAuthError(code, description, status)
}
