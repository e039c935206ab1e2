// Package middleware holds the Gin middleware shared by the local server routes.
package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// LocalhostOnly rejects requests whose TCP peer is not a loopback address. The
// peer is taken from RemoteAddr so forwarded headers cannot spoof it. allowRemote
// is consulted per request so a config reload takes effect immediately.
func LocalhostOnly(allowRemote func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowRemote != nil && allowRemote() {
			c.Next()
			return
		}
		if !isLoopback(c.Request.RemoteAddr) {
			log.Warnf("rejected non-local request from %s to %s", c.Request.RemoteAddr, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"status": "error", "error": "access restricted to localhost"})
			return
		}
		c.Next()
	}
}

// NoStore marks responses as uncacheable. Views and auth state change every tick.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

func isLoopback(remoteAddr string) bool {
	host := strings.TrimSpace(remoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
