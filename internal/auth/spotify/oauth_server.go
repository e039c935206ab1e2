package spotify

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
	"time"

	log "github.com/sirupsen/logrus"
)

// OAuthServer is the short-lived local HTTP server used by command-line logins.
// It listens on the host, port and path of the registered redirect URI and captures
// the code/state (or error) of the authorization redirect.
type OAuthServer struct {
	// server is the underlying HTTP server instance
	server *http.Server
	// listener is bound in Start so port conflicts surface synchronously
	listener net.Listener
	// addr is host:port taken from the redirect URI
	addr string
	// path is the callback path taken from the redirect URI
	path string
	// resultChan is a channel for sending OAuth results
	resultChan chan *OAuthResult
	// errorChan is a channel for sending server errors
	errorChan chan error
	// mu is a mutex for protecting server state
	mu sync.Mutex
	// running indicates whether the server is currently running
	running bool
}

// OAuthResult contains the parameters of the authorization redirect.
type OAuthResult struct {
	// Code is the authorization code received from Spotify
	Code string
	// State is the state parameter echoed back by Spotify
	State string
	// Error is the provider error code, or a local code for malformed redirects
	Error string
	// ErrorDescription accompanies Error when present
	ErrorDescription string
}

// NewOAuthServer creates a callback server for the given redirect URI.
//
// Parameters:
//   - redirectURI: The registered redirect URI, e.g. http://127.0.0.1:8888/callback
//
// Returns:
//   - *OAuthServer: A new OAuthServer instance
//   - error: An error if the redirect URI is not a usable http URL
func NewOAuthServer(redirectURI string) (*OAuthServer, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("parse redirect uri: %w", err)
	}
	if parsed.Scheme != "http" {
		return nil, fmt.Errorf("redirect uri %q must use http for the local callback server", redirectURI)
	}
	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("redirect uri %q has no host", redirectURI)
	}
	port := parsed.Port()
	if port == "" {
		port = "80"
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	return &OAuthServer{
		addr:       net.JoinHostPort(host, port),
		path:       path,
		resultChan: make(chan *OAuthResult, 1),
		errorChan:  make(chan error, 1),
	}, nil
}

// Addr returns the host:port the server listens on.
func (s *OAuthServer) Addr() string {
	return s.addr
}

// Port returns the numeric port the server listens on.
func (s *OAuthServer) Port() int {
	_, port, _ := net.SplitHostPort(s.addr)
	n, _ := strconv.Atoi(port)
	return n
}

// Start binds the callback address and begins serving in the background.
//
// Returns:
//   - error: ErrPortInUse when the address is taken, ErrServerStartFailed otherwise
func (s *OAuthServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		if isAddrInUse(err) {
			return NewAuthenticationError(ErrPortInUse, err)
		}
		return NewAuthenticationError(ErrServerStartFailed, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.listener = listener
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.running = true

	srv := s.server
	go func() {
		if errServe := srv.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			select {
			case s.errorChan <- NewAuthenticationError(ErrServerStartFailed, errServe):
			default:
			}
		}
	}()

	log.Debugf("OAuth callback server listening on http://%s%s", s.addr, s.path)
	return nil
}

// Stop gracefully stops the callback server.
func (s *OAuthServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	log.Debug("Stopping OAuth callback server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil
	s.listener = nil

	return err
}

// WaitForCallback blocks until a redirect arrives, the server fails, the context is
// cancelled or the timeout elapses.
func (s *OAuthServer) WaitForCallback(ctx context.Context, timeout time.Duration) (*OAuthResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-s.resultChan:
		return result, nil
	case err := <-s.errorChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrCallbackTimeout
	}
}

// Deliver injects a redirect obtained out of band, e.g. a callback URL pasted by the
// user when the browser could not reach the local server.
func (s *OAuthServer) Deliver(result *OAuthResult) {
	s.sendResult(result)
}

// handleCallback extracts code, state and error from the redirect query.
func (s *OAuthServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	log.Debug("Received OAuth callback")

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := ResultFromQuery(r.URL.Query())
	s.sendResult(result)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if result.Error != "" {
		log.Errorf("OAuth error received: %s", result.Error)
		message := result.Error
		if result.ErrorDescription != "" {
			message = result.Error + ": " + result.ErrorDescription
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(strings.Replace(LoginFailureHtml, "{{MESSAGE}}", html.EscapeString(message), 1)))
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(LoginSuccessHtml)); err != nil {
		log.Errorf("Failed to write success page: %v", err)
	}
}

// ResultFromQuery converts redirect query parameters into an OAuthResult. A redirect
// without error, code or state is reported with a local error code.
func ResultFromQuery(query url.Values) *OAuthResult {
	if errParam := strings.TrimSpace(query.Get("error")); errParam != "" {
		return &OAuthResult{
			Error:            errParam,
			ErrorDescription: strings.TrimSpace(query.Get("error_description")),
			State:            query.Get("state"),
		}
	}
	code := strings.TrimSpace(query.Get("code"))
	if code == "" {
		return &OAuthResult{Error: "no_code"}
	}
	state := strings.TrimSpace(query.Get("state"))
	if state == "" {
		return &OAuthResult{Error: "no_state"}
	}
	return &OAuthResult{Code: code, State: state}
}

// sendResult sends the OAuth result to the waiting channel without blocking.
func (s *OAuthServer) sendResult(result *OAuthResult) {
	select {
	case s.resultChan <- result:
		log.Debug("OAuth result sent to channel")
	default:
		log.Warn("OAuth result channel is full, result dropped")
	}
}

// IsRunning returns whether the server is currently running.
func (s *OAuthServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func isAddrInUse(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return strings.Contains(strings.ToLower(opErr.Err.Error()), "address already in use") ||
			strings.Contains(strings.ToLower(opErr.Err.Error()), "only one usage of each socket address")
	}
	return false
}
