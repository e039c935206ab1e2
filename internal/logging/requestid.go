package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/gin-gonic/gin"
)

type requestIDKey struct{}

const ginRequestIDKey = "__request_id__"

// NewRequestID returns an 8 character hex ID, the width of the log column.
func NewRequestID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}

// requestIDFromHeader accepts a caller supplied ID of 8 to 64 characters from
// [A-Za-z0-9_-] so scripts can correlate their calls with the server log.
func requestIDFromHeader(value string) (string, bool) {
	if len(value) < 8 || len(value) > 64 {
		return "", false
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", false
		}
	}
	return value, true
}

// ContextWithRequestID attaches id to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the ID attached by ContextWithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func setGinRequestID(c *gin.Context, id string) {
	if c != nil {
		c.Set(ginRequestIDKey, id)
	}
}

// GinRequestID returns the ID GinLogrusLogger assigned to this request, or "".
func GinRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(ginRequestIDKey)
}
