// Package misc holds small helpers shared by the login flows and credential stores.
package misc

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

const stateBytes = 24

// GenerateRandomState returns a URL-safe random value for the OAuth state parameter.
func GenerateRandomState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// OAuthCallback captures the parsed redirect parameters.
type OAuthCallback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseOAuthCallback extracts redirect parameters from a callback URL pasted by the
// user. A bare query string, with or without the leading "?", is accepted too.
// Empty input yields (nil, nil) so callers can keep waiting.
func ParseOAuthCallback(input string) (*OAuthCallback, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	var rawQuery string
	switch {
	case strings.Contains(input, "://"):
		parsed, err := url.Parse(input)
		if err != nil {
			return nil, fmt.Errorf("parse callback url: %w", err)
		}
		rawQuery = parsed.RawQuery
	case strings.Contains(input, "="):
		rawQuery = strings.TrimPrefix(input, "?")
	default:
		return nil, fmt.Errorf("invalid callback URL")
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("parse callback query: %w", err)
	}
	get := func(key string) string { return strings.TrimSpace(query.Get(key)) }
	cb := &OAuthCallback{
		Code:             get("code"),
		State:            get("state"),
		Error:            get("error"),
		ErrorDescription: get("error_description"),
	}
	if cb.Code == "" && cb.Error == "" {
		return nil, fmt.Errorf("callback URL missing code")
	}
	return cb, nil
}
