package view

import "sync"

// Renderer consumes rendered views.
type Renderer interface {
	Render(v View)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(View)

func (f RendererFunc) Render(v View) { f(v) }

// MultiRenderer forwards each view to every renderer in order.
type MultiRenderer []Renderer

func (m MultiRenderer) Render(v View) {
	for _, r := range m {
		if r != nil {
			r.Render(v)
		}
	}
}

// DedupeRenderer forwards a view only when what the user sees would change: a new
// track, a different status line, new lyrics or a login change. Progress alone does not
// count.
type DedupeRenderer struct {
	next Renderer

	mu      sync.Mutex
	enabled bool
	last    string
	seen    bool
}

// NewDedupeRenderer wraps next. When enabled is false every view is forwarded.
func NewDedupeRenderer(next Renderer, enabled bool) *DedupeRenderer {
	return &DedupeRenderer{next: next, enabled: enabled}
}

// SetEnabled toggles deduplication; turning it on or off forgets the last view.
func (d *DedupeRenderer) SetEnabled(enabled bool) {
	d.mu.Lock()
	d.enabled = enabled
	d.seen = false
	d.mu.Unlock()
}

// Forget makes the next view render regardless of the previous one.
func (d *DedupeRenderer) Forget() {
	d.mu.Lock()
	d.seen = false
	d.mu.Unlock()
}

func (d *DedupeRenderer) Render(v View) {
	key := dedupeKey(v)
	d.mu.Lock()
	if d.enabled && d.seen && d.last == key {
		d.mu.Unlock()
		return
	}
	d.last, d.seen = key, true
	d.mu.Unlock()
	d.next.Render(v)
}

func dedupeKey(v View) string {
	loggedIn := "0"
	if v.LoggedIn {
		loggedIn = "1"
	}
	return loggedIn + "\x00" + v.TrackID + "\x00" + v.Title + "\x00" + v.StatusText + "\x00" + v.Lyrics
}

// Latest remembers the most recent view for request/response readers.
type Latest struct {
	mu   sync.RWMutex
	view View
}

// NewLatest starts with the logged-out view.
func NewLatest() *Latest {
	return &Latest{view: Project(nil, StatusLoggedOut)}
}

func (l *Latest) Render(v View) {
	l.mu.Lock()
	l.view = v
	l.mu.Unlock()
}

// Current returns the last rendered view.
func (l *Latest) Current() View {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.view
}
