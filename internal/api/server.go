// Package api implements the local HTTP server: the now-playing page, the OAuth
// redirect route, a small JSON API and the websocket endpoint of the hub.
package api

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/NowPlaying/internal/api/middleware"
	"github.com/router-for-me/NowPlaying/internal/auth/spotify"
	"github.com/router-for-me/NowPlaying/internal/config"
	"github.com/router-for-me/NowPlaying/internal/hub"
	"github.com/router-for-me/NowPlaying/internal/logging"
	"github.com/router-for-me/NowPlaying/internal/view"
	"github.com/router-for-me/NowPlaying/sdk/auth"
	log "github.com/sirupsen/logrus"
)

// VisibilitySource is the loop source name used by POST /api/visibility.
const VisibilitySource = "api"

// Authenticator is the part of the auth manager the routes drive.
type Authenticator interface {
	State() auth.State
	Authenticated() bool
	InitiateLogin(ctx context.Context) (string, error)
	HandleRedirect(ctx context.Context, code, state string) error
	HandleAuthorizationError(ctx context.Context, code, description string) error
	Logout(ctx context.Context)
}

// Visibility receives visibility reports for the polling loop.
type Visibility interface {
	SetSourceVisible(source string, visible bool)
	Visible() bool
	Running() bool
}

// ViewSource returns the most recently rendered view.
type ViewSource interface {
	Current() view.View
}

// Options wires the server to the rest of the process.
type Options struct {
	Config *config.Config
	Auth   Authenticator
	Views  ViewSource
	Loop   Visibility
	// Hub is optional; without it /ws is not registered.
	Hub *hub.Hub
}

// Server is the loopback HTTP server.
type Server struct {
	engine       *gin.Engine
	auth         Authenticator
	views        ViewSource
	loop         Visibility
	hub          *hub.Hub
	addr         string
	callbackPath string
	allowRemote  atomic.Bool

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer builds the gin engine and registers every route.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("api: config is nil")
	}
	if opts.Auth == nil || opts.Views == nil || opts.Loop == nil {
		return nil, errors.New("api: auth, views and loop are required")
	}
	callbackPath, err := callbackPathFrom(opts.Config.Spotify.RedirectURI)
	if err != nil {
		return nil, err
	}
	if opts.Hub != nil && opts.Hub.Path() == callbackPath {
		return nil, fmt.Errorf("api: redirect uri path %q collides with the websocket route", callbackPath)
	}

	s := &Server{
		auth:         opts.Auth,
		views:        opts.Views,
		loop:         opts.Loop,
		hub:          opts.Hub,
		addr:         net.JoinHostPort(opts.Config.Host, strconv.Itoa(opts.Config.Port)),
		callbackPath: callbackPath,
	}
	s.allowRemote.Store(opts.Config.AllowRemote)
	warnOnRedirectMismatch(opts.Config)

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	s.engine = engine
	s.setupRoutes()
	return s, nil
}

// reservedPaths cannot double as the OAuth callback route.
var reservedPaths = map[string]bool{
	"/":                true,
	"/login":           true,
	"/logout":          true,
	"/api/now-playing": true,
	"/api/status":      true,
	"/api/visibility":  true,
}

func callbackPathFrom(redirectURI string) (string, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("api: parse redirect uri: %w", err)
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	if reservedPaths[path] {
		return "", fmt.Errorf("api: redirect uri path %q collides with a built-in route", path)
	}
	return path, nil
}

// warnOnRedirectMismatch logs when the redirect URI points somewhere this server
// does not listen, in which case only the CLI login can receive the redirect.
func warnOnRedirectMismatch(cfg *config.Config) {
	parsed, err := url.Parse(cfg.Spotify.RedirectURI)
	if err != nil {
		return
	}
	port := parsed.Port()
	if port == "" {
		port = "80"
		if parsed.Scheme == "https" {
			port = "443"
		}
	}
	if port != strconv.Itoa(cfg.Port) {
		log.Warnf("redirect uri %s does not target port %d; browser logins through this server will not complete", cfg.Spotify.RedirectURI, cfg.Port)
	}
}

func (s *Server) setupRoutes() {
	s.engine.GET("/", s.handlePage)
	s.engine.GET("/login", s.handleLogin)
	s.engine.GET(s.callbackPath, middleware.NoStore(), s.handleCallback)

	local := middleware.LocalhostOnly(s.allowRemote.Load)
	s.engine.POST("/logout", local, s.handleLogout)

	api := s.engine.Group("/api", middleware.NoStore())
	{
		api.GET("/now-playing", s.handleNowPlaying)
		api.GET("/status", s.handleStatus)
		api.POST("/visibility", local, s.handleVisibility)
	}

	if s.hub != nil {
		wsHandler := s.hub.Handler()
		s.engine.GET(s.hub.Path(), func(c *gin.Context) {
			logging.SkipGinRequestLogging(c)
			wsHandler.ServeHTTP(c.Writer, c.Request)
			c.Abort()
		})
	}
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the address the server listens on once started, or the
// configured address before that.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// UpdateConfig applies the settings that can change without a restart.
func (s *Server) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if s.allowRemote.Swap(cfg.AllowRemote) != cfg.AllowRemote {
		log.Infof("allow-remote changed to %t", cfg.AllowRemote)
	}
}

// Start binds the listener synchronously so a busy port is reported to the caller,
// then serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.New("api: server already started")
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("api: listen on %s: %w", s.addr, err)
	}
	server := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.server = server
	s.listener = listener
	s.mu.Unlock()

	log.Infof("NowPlaying server listening on http://%s", listener.Addr())
	go func() {
		if errServe := server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			log.Errorf("server failed on %s: %v", listener.Addr(), errServe)
		}
	}()
	return nil
}

// Stop closes websocket sessions and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()

	if s.hub != nil {
		if errHub := s.hub.Stop(ctx); errHub != nil {
			log.Warnf("hub stop: %v", errHub)
		}
	}
	if server == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	log.Info("NowPlaying server stopped")
	return nil
}

func (s *Server) handlePage(c *gin.Context) {
	wsPath := ""
	if s.hub != nil {
		wsPath = s.hub.Path()
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(renderPage(wsPath)))
}

func (s *Server) handleLogin(c *gin.Context) {
	authURL, err := s.auth.InitiateLogin(c.Request.Context())
	if err != nil {
		log.WithField("request_id", logging.GinRequestID(c)).Errorf("login initiation failed: %v", err)
		s.renderFailure(c, http.StatusInternalServerError, "Could not start the Spotify login. Please try again.")
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

func (s *Server) handleCallback(c *gin.Context) {
	ctx := c.Request.Context()
	result := spotify.ResultFromQuery(c.Request.URL.Query())

	switch result.Error {
	case "":
	case "no_code", "no_state":
		s.renderFailure(c, http.StatusBadRequest, "The login response was incomplete. Please try again.")
		return
	default:
		err := s.auth.HandleAuthorizationError(ctx, result.Error, result.ErrorDescription)
		s.renderFailure(c, http.StatusBadRequest, spotify.GetUserFriendlyMessage(err))
		return
	}

	if err := s.auth.HandleRedirect(ctx, result.Code, result.State); err != nil {
		s.renderFailure(c, http.StatusBadRequest, spotify.GetUserFriendlyMessage(err))
		return
	}
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) renderFailure(c *gin.Context, status int, message string) {
	page := strings.Replace(spotify.LoginFailureHtml, "{{MESSAGE}}", html.EscapeString(message), 1)
	c.Data(status, "text/html; charset=utf-8", []byte(page))
}

func (s *Server) handleLogout(c *gin.Context) {
	s.auth.Logout(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleNowPlaying(c *gin.Context) {
	c.JSON(http.StatusOK, s.views.Current())
}

func (s *Server) handleStatus(c *gin.Context) {
	viewers := 0
	if s.hub != nil {
		viewers = s.hub.Count()
	}
	c.JSON(http.StatusOK, gin.H{
		"state":         s.auth.State().String(),
		"authenticated": s.auth.Authenticated(),
		"polling":       s.loop.Running(),
		"visible":       s.loop.Visible(),
		"viewers":       viewers,
	})
}

type visibilityRequest struct {
	Hidden *bool `json:"hidden"`
}

func (s *Server) handleVisibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Hidden == nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "body must be {\"hidden\": bool}"})
		return
	}
	s.loop.SetSourceVisible(VisibilitySource, !*req.Hidden)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "visible": s.loop.Visible()})
}
