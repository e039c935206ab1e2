package tui

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// logLine is one captured entry, rendered by the hook's formatter.
type logLine struct {
	level log.Level
	text  string
}

// LogHook collects log entries for the logs tab. Entries accumulate in a bounded
// buffer; when it overflows the oldest entries are dropped and counted, so Fire
// never blocks the logger.
type LogHook struct {
	mu        sync.Mutex
	formatter log.Formatter
	capacity  int
	pending   []logLine
	dropped   int
	ready     chan struct{}
}

// NewLogHook returns a hook that holds at most capacity undelivered lines.
func NewLogHook(capacity int) *LogHook {
	return &LogHook{
		formatter: &log.TextFormatter{DisableColors: true, FullTimestamp: true},
		capacity:  max(capacity, 1),
		ready:     make(chan struct{}, 1),
	}
}

// SetFormatter replaces the formatter. A nil formatter renders "[level] message".
func (h *LogHook) SetFormatter(f log.Formatter) {
	h.mu.Lock()
	h.formatter = f
	h.mu.Unlock()
}

func (h *LogHook) Levels() []log.Level {
	return log.AllLevels
}

func (h *LogHook) Fire(entry *log.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	text := fmt.Sprintf("[%s] %s", entry.Level, entry.Message)
	if h.formatter != nil {
		if b, err := h.formatter.Format(entry); err == nil {
			text = strings.TrimRight(string(b), "\r\n")
		}
	}
	h.pending = append(h.pending, logLine{level: entry.Level, text: text})
	if over := len(h.pending) - h.capacity; over > 0 {
		h.pending = append(h.pending[:0], h.pending[over:]...)
		h.dropped += over
	}

	select {
	case h.ready <- struct{}{}:
	default:
	}
	return nil
}

// Ready signals that Drain has something to return.
func (h *LogHook) Ready() <-chan struct{} {
	return h.ready
}

// Drain hands over the buffered lines and the number dropped since the last call.
func (h *LogHook) Drain() ([]logLine, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	lines, dropped := h.pending, h.dropped
	h.pending, h.dropped = nil, 0
	return lines, dropped
}
