// Package lyrics looks up song lyrics on lyrics.ovh.
package lyrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/router-for-me/NowPlaying/internal/buildinfo"
	"github.com/router-for-me/NowPlaying/internal/cache"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "https://api.lyrics.ovh/v1"
	DefaultTimeout = 8 * time.Second
)

// Client fetches lyrics and remembers both hits and misses.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.TTLCache
}

// NewClient returns a lyrics client. A nil httpClient uses a client with DefaultTimeout.
func NewClient(baseURL string, httpClient *http.Client, ttl time.Duration) *Client {
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, cache: cache.New(ttl)}
}

// Close releases the cache's background cleanup.
func (c *Client) Close() {
	c.cache.Close()
}

// Lookup returns the lyrics for title by artist, or "" when none are known.
// Lookup failures are logged and reported as "" with the error so callers can ignore it.
func (c *Client) Lookup(ctx context.Context, artist, title string) (string, error) {
	artist, title = strings.TrimSpace(artist), strings.TrimSpace(title)
	if artist == "" || title == "" {
		return "", nil
	}
	if entry, ok := c.cache.Get(artist, title); ok {
		return entry.Value, nil
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(artist), url.PathEscape(title))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("lyrics: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Debug("lyrics lookup failed")
		return "", fmt.Errorf("lyrics: request failed: %w", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("response body close error: %v", errClose)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("lyrics: read body: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.cache.Put(artist, title, "", false)
		return "", nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("lyrics: unexpected status %d", resp.StatusCode)
	}

	text := strings.TrimSpace(strings.ReplaceAll(gjson.GetBytes(body, "lyrics").String(), "\r\n", "\n"))
	c.cache.Put(artist, title, text, text != "")
	return text, nil
}
