package player

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a failed Web API call.
type Kind int

const (
	KindTransient Kind = iota
	KindUnauthorized
	KindForbidden
	KindRateLimited
	KindNoActiveDevice
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	case KindNoActiveDevice:
		return "no_active_device"
	default:
		return "transient"
	}
}

var (
	// ErrUnauthorized matches a 401 from any authenticated call.
	ErrUnauthorized = errors.New("spotify api: unauthorized")
	// ErrForbidden matches a 403; usually the account lacks Premium.
	ErrForbidden = errors.New("spotify api: forbidden")
	// ErrRateLimited matches a 429.
	ErrRateLimited = errors.New("spotify api: rate limited")
	// ErrTransient matches any other transport or non-2xx failure.
	ErrTransient = errors.New("spotify api: transient failure")
	// ErrNoActiveDevice is reported when no device can receive playback.
	ErrNoActiveDevice = errors.New("spotify api: no active device")
	// ErrReauthenticationRequired is returned once credentials have been reset; the
	// user must log in again.
	ErrReauthenticationRequired = errors.New("spotify api: reauthentication required")
)

// APIError describes a classified Web API failure.
type APIError struct {
	Kind       Kind
	StatusCode int
	Endpoint   string
	Message    string
	// RetryAfter is set for KindRateLimited when the server sent Retry-After.
	RetryAfter time.Duration
	Cause      error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("spotify api ")
	b.WriteString(e.Endpoint)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		b.WriteString(" (status ")
		b.WriteString(strconv.Itoa(e.StatusCode))
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Cause }

// Is lets errors.Is match an APIError against the sentinel for its kind.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrReauthenticationRequired:
		return e.Kind == KindUnauthorized
	case ErrForbidden:
		return e.Kind == KindForbidden
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrNoActiveDevice:
		return e.Kind == KindNoActiveDevice
	case ErrTransient:
		return e.Kind == KindTransient
	}
	return false
}

// KindOf returns the kind of err, or KindTransient when err is not an *APIError.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransient
}

// RetryAfter returns the server's backoff hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

func classifyStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindTransient
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func transportError(endpoint string, err error) error {
	return &APIError{Kind: KindTransient, Endpoint: endpoint, Cause: fmt.Errorf("request failed: %w", err)}
}
