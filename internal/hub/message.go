package hub

import "github.com/router-for-me/NowPlaying/internal/view"

// Message is the JSON envelope exchanged with pages.
type Message struct {
	ID     string     `json:"id,omitempty"`
	Type   string     `json:"type"`
	Hidden bool       `json:"hidden,omitempty"`
	View   *view.View `json:"view,omitempty"`
	Error  string     `json:"error,omitempty"`
}

const (
	// MessageTypeView carries a rendered view to the page.
	MessageTypeView = "view"
	// MessageTypeVisibility reports the page's document.hidden state.
	MessageTypeVisibility = "visibility"
	// MessageTypeRefresh asks for an immediate tick.
	MessageTypeRefresh = "refresh"
	// MessageTypePing represents ping messages from clients.
	MessageTypePing = "ping"
	// MessageTypePong represents pong responses back to clients.
	MessageTypePong = "pong"
	// MessageTypeError reports a rejected inbound message.
	MessageTypeError = "error"
)
