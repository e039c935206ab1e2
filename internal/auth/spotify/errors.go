// Package spotify implements the Spotify accounts protocol used by NowPlaying: the
// PKCE authorization redirect, authorization-code and refresh-token exchanges, the local
// callback server for command-line logins, and the authentication error taxonomy.
package spotify

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuthError represents an error returned by the accounts service, either on the
// authorization redirect (error=...) or from the token endpoint.
type OAuthError struct {
	// Code is the OAuth error code.
	Code string `json:"error"`
	// Description is a human-readable description of the error.
	Description string `json:"error_description,omitempty"`
	// StatusCode is the HTTP status code associated with the error.
	StatusCode int `json:"-"`
}

// Error returns a string representation of the OAuth error.
func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("OAuth error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("OAuth error: %s", e.Code)
}

// NewOAuthError creates a new OAuth error with the specified code, description, and status code.
func NewOAuthError(code, description string, statusCode int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		StatusCode:  statusCode,
	}
}

// AuthenticationError represents authentication-related errors.
type AuthenticationError struct {
	// Type is the type of authentication error.
	Type string `json:"type"`
	// Message is a human-readable message describing the error.
	Message string `json:"message"`
	// Code is the HTTP status code associated with the error.
	Code int `json:"code"`
	// Cause is the underlying error that caused this authentication error.
	Cause error `json:"-"`
}

// Error returns a string representation of the authentication error.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// Is matches any AuthenticationError of the same Type, so callers can compare
// against the base values below with errors.Is.
func (e *AuthenticationError) Is(target error) bool {
	var other *AuthenticationError
	if !errors.As(target, &other) {
		return false
	}
	return other.Type == e.Type
}

// Common authentication error types.
var (
	// ErrAuthorizationDenied is returned when the user or provider rejects the login.
	ErrAuthorizationDenied = &AuthenticationError{
		Type:    "authorization_denied",
		Message: "Authorization was denied",
		Code:    http.StatusForbidden,
	}

	// ErrTokenExchangeFailed is returned when the authorization code cannot be exchanged.
	ErrTokenExchangeFailed = &AuthenticationError{
		Type:    "code_exchange_failed",
		Message: "Failed to exchange authorization code for tokens",
		Code:    http.StatusBadRequest,
	}

	// ErrTokenRefreshFailed is returned when the refresh token is rejected or unreachable.
	ErrTokenRefreshFailed = &AuthenticationError{
		Type:    "token_refresh_failed",
		Message: "Failed to refresh access token",
		Code:    http.StatusUnauthorized,
	}

	// ErrNotAuthenticated is returned when no credentials are available at all.
	ErrNotAuthenticated = &AuthenticationError{
		Type:    "authentication_required",
		Message: "No Spotify credentials are available",
		Code:    http.StatusUnauthorized,
	}

	// ErrMissingVerifier is returned when a redirect arrives without a stored code verifier.
	ErrMissingVerifier = &AuthenticationError{
		Type:    "missing_code_verifier",
		Message: "No code verifier is stored for this login attempt",
		Code:    http.StatusBadRequest,
	}

	// ErrInvalidState represents an error for invalid OAuth state parameter.
	ErrInvalidState = &AuthenticationError{
		Type:    "invalid_state",
		Message: "OAuth state parameter is invalid",
		Code:    http.StatusBadRequest,
	}

	// ErrServerStartFailed represents an error when starting the OAuth callback server fails.
	ErrServerStartFailed = &AuthenticationError{
		Type:    "server_start_failed",
		Message: "Failed to start OAuth callback server",
		Code:    http.StatusInternalServerError,
	}

	// ErrPortInUse represents an error when the OAuth callback port is already in use.
	ErrPortInUse = &AuthenticationError{
		Type:    "port_in_use",
		Message: "OAuth callback port is already in use",
		Code:    13, // Special exit code for port-in-use
	}

	// ErrCallbackTimeout represents an error when waiting for OAuth callback times out.
	ErrCallbackTimeout = &AuthenticationError{
		Type:    "callback_timeout",
		Message: "Timeout waiting for OAuth callback",
		Code:    http.StatusRequestTimeout,
	}
)

// NewAuthenticationError creates a new authentication error with a cause based on a base error.
func NewAuthenticationError(baseErr *AuthenticationError, cause error) *AuthenticationError {
	return &AuthenticationError{
		Type:    baseErr.Type,
		Message: baseErr.Message,
		Code:    baseErr.Code,
		Cause:   cause,
	}
}

// IsAuthenticationError checks if an error is an authentication error.
func IsAuthenticationError(err error) bool {
	var authenticationError *AuthenticationError
	return errors.As(err, &authenticationError)
}

// IsOAuthError checks if an error is an OAuth error.
func IsOAuthError(err error) bool {
	var oAuthError *OAuthError
	return errors.As(err, &oAuthError)
}

// IsCredentialFailure reports whether err means the stored credentials are gone and
// the user has to log in again.
func IsCredentialFailure(err error) bool {
	return errors.Is(err, ErrTokenRefreshFailed) ||
		errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrTokenExchangeFailed) ||
		errors.Is(err, ErrAuthorizationDenied)
}

// GetUserFriendlyMessage returns a user-friendly error message based on the error type.
func GetUserFriendlyMessage(err error) string {
	var authErr *AuthenticationError
	var oauthErr *OAuthError
	switch {
	case errors.As(err, &authErr):
		switch authErr.Type {
		case ErrAuthorizationDenied.Type:
			return "Spotify login was cancelled or denied."
		case ErrTokenExchangeFailed.Type, ErrMissingVerifier.Type:
			return "Spotify login could not be completed. Please log in again."
		case ErrTokenRefreshFailed.Type:
			return "Your Spotify session has expired. Please log in again."
		case ErrNotAuthenticated.Type:
			return "Please log in with Spotify to continue."
		case ErrInvalidState.Type:
			return "The login response did not match this session. Please try again."
		case ErrPortInUse.Type:
			return "The callback port is already in use. Stop the running NowPlaying server or choose another port."
		case ErrCallbackTimeout.Type:
			return "Authentication timed out. Please try again."
		default:
			return "Authentication failed. Please try again."
		}
	case errors.As(err, &oauthErr):
		switch oauthErr.Code {
		case "access_denied":
			return "Authentication was cancelled or denied."
		case "invalid_grant":
			return "The authorization code or refresh token is no longer valid."
		default:
			return fmt.Sprintf("Authentication failed: %s", oauthErr.Error())
		}
	default:
		return "An unexpected error occurred. Please try again."
	}
}
