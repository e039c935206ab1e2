// Package cache keeps short-lived lookup results keyed by a group and a hashed text key.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long entries stay valid when no TTL is configured.
	DefaultTTL = 6 * time.Hour

	// TextHashLen is the length of the hash key (16 hex chars = 64-bit key space)
	TextHashLen = 16

	// CleanupInterval controls how often stale entries are purged
	CleanupInterval = 10 * time.Minute
)

// Entry holds a cached value. Found is false for a remembered miss.
type Entry struct {
	Value     string
	Found     bool
	Timestamp time.Time
}

// groupCache is the inner map type
type groupCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// TTLCache stores values by group -> textHash -> Entry with sliding expiration.
type TTLCache struct {
	groups      sync.Map
	ttl         time.Duration
	now         func() time.Time
	cleanupOnce sync.Once
	stop        chan struct{}
	stopOnce    sync.Once
}

// New returns a cache whose entries live for ttl after their last access.
func New(ttl time.Duration) *TTLCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTLCache{ttl: ttl, now: time.Now, stop: make(chan struct{})}
}

// hashText creates a stable, Unicode-safe key from text content
func hashText(text string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(h[:])[:TextHashLen]
}

func normalizeGroup(group string) string {
	return strings.ToLower(strings.TrimSpace(group))
}

// getOrCreateGroupCache gets or creates a cache bucket for a group
func (c *TTLCache) getOrCreateGroupCache(groupKey string) *groupCache {
	// Start background cleanup on first write
	c.cleanupOnce.Do(c.startCleanup)

	if val, ok := c.groups.Load(groupKey); ok {
		return val.(*groupCache)
	}
	gc := &groupCache{entries: make(map[string]Entry)}
	actual, _ := c.groups.LoadOrStore(groupKey, gc)
	return actual.(*groupCache)
}

// startCleanup launches a background goroutine that periodically
// removes groups where all entries have expired.
func (c *TTLCache) startCleanup() {
	go func() {
		ticker := time.NewTicker(CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.PurgeExpired()
			case <-c.stop:
				return
			}
		}
	}()
}

// Close stops the background cleanup goroutine.
func (c *TTLCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// PurgeExpired removes expired entries and empty groups.
func (c *TTLCache) PurgeExpired() {
	now := c.now()
	c.groups.Range(func(key, value any) bool {
		gc := value.(*groupCache)
		gc.mu.Lock()
		for k, entry := range gc.entries {
			if now.Sub(entry.Timestamp) > c.ttl {
				delete(gc.entries, k)
			}
		}
		isEmpty := len(gc.entries) == 0
		gc.mu.Unlock()
		if isEmpty {
			c.groups.Delete(key)
		}
		return true
	})
}

// Put stores value for group/text. found=false remembers a miss so it is not
// looked up again until it expires.
func (c *TTLCache) Put(group, text, value string, found bool) {
	if strings.TrimSpace(text) == "" {
		return
	}
	gc := c.getOrCreateGroupCache(normalizeGroup(group))
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.entries[hashText(text)] = Entry{Value: value, Found: found, Timestamp: c.now()}
}

// Get returns the entry for group/text. ok is false when nothing valid is cached.
func (c *TTLCache) Get(group, text string) (Entry, bool) {
	if strings.TrimSpace(text) == "" {
		return Entry{}, false
	}
	val, ok := c.groups.Load(normalizeGroup(group))
	if !ok {
		return Entry{}, false
	}
	gc := val.(*groupCache)
	textHash := hashText(text)
	now := c.now()

	gc.mu.Lock()
	defer gc.mu.Unlock()
	entry, exists := gc.entries[textHash]
	if !exists {
		return Entry{}, false
	}
	if now.Sub(entry.Timestamp) > c.ttl {
		delete(gc.entries, textHash)
		return Entry{}, false
	}

	// Refresh TTL on access (sliding expiration).
	entry.Timestamp = now
	gc.entries[textHash] = entry
	return entry, true
}

// Clear drops one group, or every group when group is empty.
func (c *TTLCache) Clear(group string) {
	if strings.TrimSpace(group) == "" {
		c.groups.Range(func(key, _ any) bool {
			c.groups.Delete(key)
			return true
		})
		return
	}
	c.groups.Delete(normalizeGroup(group))
}

// Len counts valid and expired entries not yet purged.
func (c *TTLCache) Len() int {
	n := 0
	c.groups.Range(func(_, value any) bool {
		gc := value.(*groupCache)
		gc.mu.RLock()
		n += len(gc.entries)
		gc.mu.RUnlock()
		return true
	})
	return n
}
