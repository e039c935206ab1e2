// Package logging configures the shared logrus logger and provides Gin middleware
// for request logging and panic recovery.
package logging

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/NowPlaying/internal/util"
	log "github.com/sirupsen/logrus"
)

// trackedPrefixes are the paths that get a request ID. Static page loads and
// websocket upgrades stay on the "--------" placeholder.
var trackedPrefixes = []string{
	"/api/",
	"/login",
	"/logout",
	"/callback",
}

// RequestIDHeader carries a caller supplied request ID and echoes the one in use.
const RequestIDHeader = "X-Request-Id"

const skipGinLogKey = "__gin_skip_request_logging__"

// GinLogrusLogger returns a Gin middleware that logs each request through logrus.
//
// Output format (tracked): [2026-01-02 20:14:10] [a1b2c3d4] [info ] 200 |     3ms | 127.0.0.1 | GET "/api/now-playing"
// Output format (others):  [2026-01-02 20:14:10] [--------] [info ] 200 |     1ms | 127.0.0.1 | GET "/"
func GinLogrusLogger() gin.HandlerFunc {
	return GinLogrusLoggerWithPrefixes(trackedPrefixes...)
}

// GinLogrusLoggerWithPrefixes is GinLogrusLogger with a custom set of tracked prefixes.
func GinLogrusLoggerWithPrefixes(prefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := util.MaskSensitiveQuery(c.Request.URL.RawQuery)

		var requestID string
		if hasPrefix(path, prefixes) {
			var ok bool
			if requestID, ok = requestIDFromHeader(c.GetHeader(RequestIDHeader)); !ok {
				requestID = NewRequestID()
			}
			setGinRequestID(c, requestID)
			c.Request = c.Request.WithContext(ContextWithRequestID(c.Request.Context(), requestID))
			c.Header(RequestIDHeader, requestID)
		}

		c.Next()

		if shouldSkipGinRequestLogging(c) {
			return
		}
		if raw != "" {
			path += "?" + raw
		}
		if requestID == "" {
			requestID = "--------"
		}

		status := c.Writer.Status()
		line := fmt.Sprintf("%3d | %13v | %15s | %-7s \"%s\"", status, roundLatency(time.Since(start)), c.ClientIP(), c.Request.Method, path)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			line += " | " + errs
		}
		log.WithField("request_id", requestID).Log(levelForStatus(status), line)
	}
}

func roundLatency(d time.Duration) time.Duration {
	if d > time.Minute {
		return d.Truncate(time.Second)
	}
	return d.Truncate(time.Millisecond)
}

func levelForStatus(status int) log.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return log.ErrorLevel
	case status >= http.StatusBadRequest:
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func hasPrefix(path string, prefixes []string) bool {
	return slices.ContainsFunc(prefixes, func(prefix string) bool {
		return strings.HasPrefix(path, prefix)
	})
}

// GinLogrusRecovery returns a Gin middleware that recovers from panics, logs them
// with the stack and answers 500.
func GinLogrusRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		if err, ok := recovered.(error); ok && errors.Is(err, http.ErrAbortHandler) {
			// Let net/http abort the connection without a stack dump.
			panic(http.ErrAbortHandler)
		}

		log.WithFields(log.Fields{
			"panic":      recovered,
			"stack":      string(debug.Stack()),
			"path":       c.Request.URL.Path,
			"request_id": GinRequestID(c),
		}).Error("recovered from panic")

		c.AbortWithStatus(http.StatusInternalServerError)
	})
}

// SkipGinRequestLogging marks the context so GinLogrusLogger does not log it.
func SkipGinRequestLogging(c *gin.Context) {
	if c != nil {
		c.Set(skipGinLogKey, true)
	}
}

func shouldSkipGinRequestLogging(c *gin.Context) bool {
	return c != nil && c.GetBool(skipGinLogKey)
}
