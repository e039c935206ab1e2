package auth

import "github.com/router-for-me/NowPlaying/internal/auth/spotify"

// Re-exported authentication errors so SDK users can match failures with errors.Is
// without importing internal packages.
var (
	ErrAuthorizationDenied = spotify.ErrAuthorizationDenied
	ErrTokenExchangeFailed = spotify.ErrTokenExchangeFailed
	ErrTokenRefreshFailed  = spotify.ErrTokenRefreshFailed
	ErrNotAuthenticated    = spotify.ErrNotAuthenticated
	ErrInvalidState        = spotify.ErrInvalidState
	ErrMissingVerifier     = spotify.ErrMissingVerifier
)
