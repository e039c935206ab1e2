// Package hub pushes rendered views to open pages over websockets and reports each
// page's visibility back to the polling loop.
package hub

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/router-for-me/NowPlaying/internal/view"
	log "github.com/sirupsen/logrus"
)

// Hub exposes a websocket endpoint and broadcasts views to every connected page.
type Hub struct {
	path      string
	upgrader  websocket.Upgrader
	sessions  map[string]*session
	sessMutex sync.RWMutex

	current        func() view.View
	onConnected    func(id string)
	onDisconnected func(id string, cause error)
	onVisibility   func(id string, hidden bool)
	onRefresh      func(id string)
}

// Options configures a Hub instance.
type Options struct {
	Path string
	// Current supplies the view sent to a page right after it connects.
	Current        func() view.View
	OnConnected    func(id string)
	OnDisconnected func(id string, cause error)
	OnVisibility   func(id string, hidden bool)
	OnRefresh      func(id string)
	// CheckOrigin overrides the same-origin check.
	CheckOrigin func(r *http.Request) bool
}

// New builds a hub with the supplied options.
func New(opts Options) *Hub {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = "/ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Hub{
		path:     path,
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		current:        opts.Current,
		onConnected:    opts.OnConnected,
		onDisconnected: opts.OnDisconnected,
		onVisibility:   opts.OnVisibility,
		onRefresh:      opts.OnRefresh,
	}
}

// Path returns the HTTP path the hub expects for websocket upgrades.
func (h *Hub) Path() string {
	return h.path
}

// Handler exposes an http.Handler that upgrades connections to websocket sessions.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(h.handleWebsocket)
}

// Count returns the number of connected pages.
func (h *Hub) Count() int {
	h.sessMutex.RLock()
	defer h.sessMutex.RUnlock()
	return len(h.sessions)
}

// Render broadcasts v to every connected page. Pages that cannot keep up are dropped.
func (h *Hub) Render(v view.View) {
	h.sessMutex.RLock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessMutex.RUnlock()

	for _, s := range sessions {
		viewCopy := v
		s.enqueue(Message{Type: MessageTypeView, View: &viewCopy})
	}
}

// Stop gracefully closes all active websocket sessions.
func (h *Hub) Stop(_ context.Context) error {
	h.sessMutex.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessMutex.Unlock()

	for _, s := range sessions {
		s.cleanup(errors.New("hub stopped"))
	}
	return nil
}

// handleWebsocket upgrades the connection and wires the session into the pool.
func (h *Hub) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.URL != nil && r.URL.Path != h.path {
		http.NotFound(w, r)
		return
	}
	if !strings.EqualFold(r.Method, http.MethodGet) {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("hub: websocket upgrade failed: %v", err)
		return
	}

	s := newSession(conn, h, uuid.NewString())
	h.sessMutex.Lock()
	h.sessions[s.id] = s
	h.sessMutex.Unlock()
	log.Debugf("hub: page %s connected", s.id)

	if h.onConnected != nil {
		h.onConnected(s.id)
	}
	if h.current != nil {
		v := h.current()
		s.enqueue(Message{Type: MessageTypeView, View: &v})
	}

	go s.writeLoop()
	go s.run()
}

func (h *Hub) dispatch(s *session, msg Message) {
	switch msg.Type {
	case MessageTypePing:
		s.enqueue(Message{ID: msg.ID, Type: MessageTypePong})
	case MessageTypeVisibility:
		if h.onVisibility != nil {
			h.onVisibility(s.id, msg.Hidden)
		}
	case MessageTypeRefresh:
		if h.onRefresh != nil {
			h.onRefresh(s.id)
		}
	default:
		s.enqueue(Message{ID: msg.ID, Type: MessageTypeError, Error: "unsupported message type " + msg.Type})
	}
}

func (h *Hub) handleSessionClosed(s *session, cause error) {
	h.sessMutex.Lock()
	if cur, ok := h.sessions[s.id]; ok && cur == s {
		delete(h.sessions, s.id)
	}
	h.sessMutex.Unlock()
	log.Debugf("hub: page %s disconnected: %v", s.id, cause)
	if h.onDisconnected != nil {
		h.onDisconnected(s.id, cause)
	}
}
