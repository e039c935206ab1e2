package tui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/router-for-me/NowPlaying/internal/view"
)

// FocusSource is the loop visibility source reported by the terminal.
const FocusSource = "tui"

// Session is the status snapshot shown on the session tab.
type Session struct {
	AuthState     string
	Authenticated bool
	Polling       bool
	Visible       bool
	Viewers       int
	Interval      time.Duration
	DevicePolicy  string
	Store         string
	PageURL       string
}

// Controller is what the terminal drives.
type Controller interface {
	InitiateLogin(ctx context.Context) (string, error)
	Logout(ctx context.Context)
	TriggerNow()
	SetFocused(focused bool)
	Session() Session
}

// ViewFeed is a view.Renderer that hands the newest view to the program. Render
// never blocks; views arriving faster than the terminal redraws are coalesced.
type ViewFeed struct {
	mu     sync.Mutex
	latest view.View
	ready  chan struct{}
}

// NewViewFeed returns an empty feed.
func NewViewFeed() *ViewFeed {
	return &ViewFeed{ready: make(chan struct{}, 1)}
}

// Render stores v and wakes the program.
func (f *ViewFeed) Render(v view.View) {
	f.mu.Lock()
	f.latest = v
	f.mu.Unlock()
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

type viewMsg view.View

func (f *ViewFeed) wait() tea.Msg {
	<-f.ready
	f.mu.Lock()
	defer f.mu.Unlock()
	return viewMsg(f.latest)
}
