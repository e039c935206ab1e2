package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readTimeout          = 60 * time.Second
	writeTimeout         = 10 * time.Second
	maxInboundMessageLen = 16 << 10 // 16 KiB
	heartbeatInterval    = 30 * time.Second
	outboundQueueLen     = 16
)

var (
	errClosed       = errors.New("websocket session closed")
	errSlowConsumer = errors.New("websocket client too slow")
)

type session struct {
	conn      *websocket.Conn
	hub       *Hub
	id        string
	outbound  chan Message
	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, h *Hub, id string) *session {
	s := &session{
		conn:     conn,
		hub:      h,
		id:       id,
		outbound: make(chan Message, outboundQueueLen),
		closed:   make(chan struct{}),
	}
	conn.SetReadLimit(maxInboundMessageLen)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	return s
}

// enqueue never blocks; a full queue closes the session.
func (s *session) enqueue(msg Message) {
	select {
	case <-s.closed:
		return
	default:
	}
	select {
	case s.outbound <- msg:
	default:
		s.cleanup(errSlowConsumer)
	}
}

// writeLoop owns every write to the connection, including heartbeats.
func (s *session) writeLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case msg := <-s.outbound:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				s.cleanup(err)
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				s.cleanup(err)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				s.cleanup(err)
				return
			}
		}
	}
}

func (s *session) run() {
	defer s.cleanup(errClosed)
	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.cleanup(err)
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		s.hub.dispatch(s, msg)
	}
}

func (s *session) cleanup(cause error) {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
		if s.hub != nil {
			s.hub.handleSessionClosed(s, cause)
		}
	})
}
