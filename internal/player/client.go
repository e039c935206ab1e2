package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/router-for-me/NowPlaying/internal/buildinfo"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://api.spotify.com/v1"
	DefaultTimeout   = 15 * time.Second
	DefaultRateLimit = 5 // requests per second

	endpointPlayer  = "/me/player"
	endpointDevices = "/me/player/devices"
)

// TokenSource hands out bearer tokens and clears every credential when the API
// rejects one.
type TokenSource interface {
	EnsureValidToken(ctx context.Context) (string, error)
	Reset(ctx context.Context, cause error)
}

// Client performs authenticated Spotify Web API player calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	limiter    *rate.Limiter
	now        func() time.Time
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets the Web API root.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient replaces the HTTP client, e.g. one configured with a proxy.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithRateLimit sets the outbound request rate. Non-positive values keep the default.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// NewClient creates a player client drawing tokens from tokens.
func NewClient(tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPlaybackState returns the current playback, or nil when nothing is playing.
//
// 204 and bodies without an item yield (nil, nil). 403 yields an error matching
// ErrForbidden. 401 resets credentials and yields ErrReauthenticationRequired.
func (c *Client) GetPlaybackState(ctx context.Context) (*Snapshot, error) {
	status, body, err := c.do(ctx, http.MethodGet, endpointPlayer, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	return parseSnapshot(body), nil
}

// ListDevices returns the user's devices in API order. A body that is not the expected
// JSON is treated as an empty list.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	_, body, err := c.do(ctx, http.MethodGet, endpointDevices, nil)
	if err != nil {
		return nil, err
	}
	return parseDevices(body), nil
}

// TransferPlayback moves playback to deviceID, optionally starting it.
func (c *Client) TransferPlayback(ctx context.Context, deviceID string, play bool) error {
	if strings.TrimSpace(deviceID) == "" {
		return &APIError{Kind: KindNoActiveDevice, Endpoint: endpointPlayer, Message: "device id is empty"}
	}
	payload, err := sjson.SetBytes([]byte(`{}`), "device_ids", []string{deviceID})
	if err != nil {
		return fmt.Errorf("build transfer body: %w", err)
	}
	if payload, err = sjson.SetBytes(payload, "play", play); err != nil {
		return fmt.Errorf("build transfer body: %w", err)
	}
	_, _, err = c.do(ctx, http.MethodPut, endpointPlayer, payload)
	// Spotify answers a transfer to a vanished device with 404.
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		apiErr.Kind = KindNoActiveDevice
	}
	return err
}

// do sends one authenticated request and classifies the outcome. It returns the
// status and decoded body of a 2xx response.
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, error) {
	token, err := c.tokens.EnsureValidToken(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, fmt.Errorf("%w: %w", ErrReauthenticationRequired, err)
	}
	if err = c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("Accept-Encoding", acceptEncoding)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		log.WithError(err).WithField("endpoint", endpoint).Debug("spotify api request failed")
		return 0, nil, transportError(endpoint, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("response body close error: %v", errClose)
		}
	}()

	body, errRead := readBody(resp.Body, resp.Header.Get("Content-Encoding"))
	log.WithFields(log.Fields{
		"method":   method,
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"elapsed":  c.now().Sub(start).String(),
	}).Debug("spotify api response")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if errRead != nil {
			return 0, nil, transportError(endpoint, errRead)
		}
		return resp.StatusCode, body, nil
	}

	apiErr := &APIError{
		Kind:       classifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Endpoint:   endpoint,
		Message:    errorMessage(body),
	}
	if apiErr.Kind == KindRateLimited {
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
	}
	if apiErr.Kind == KindUnauthorized {
		c.tokens.Reset(ctx, apiErr)
	}
	return resp.StatusCode, nil, apiErr
}

// errorMessage extracts Spotify's {"error":{"status","message"}} text.
func errorMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "error_description").String()
	}
	if reason := gjson.GetBytes(body, "error.reason").String(); reason != "" {
		if msg == "" {
			return reason
		}
		return msg + " (" + reason + ")"
	}
	return msg
}

func parseSnapshot(body []byte) *Snapshot {
	if !gjson.ValidBytes(body) {
		log.Debug("spotify api: playback state body is not JSON; treating as nothing playing")
		return nil
	}
	root := gjson.ParseBytes(body)
	item := root.Get("item")
	if !item.IsObject() {
		return nil
	}

	snap := &Snapshot{
		IsPlaying:      root.Get("is_playing").Bool(),
		DeviceID:       root.Get("device.id").String(),
		DeviceName:     root.Get("device.name").String(),
		DeviceType:     root.Get("device.type").String(),
		DeviceIsActive: root.Get("device.is_active").Bool(),
		TrackID:        item.Get("id").String(),
		TrackName:      item.Get("name").String(),
		TrackURL:       item.Get("external_urls.spotify").String(),
		AlbumName:      item.Get("album.name").String(),
		AlbumArtURL:    item.Get("album.images.0.url").String(),
		ProgressMs:     int(root.Get("progress_ms").Int()),
		DurationMs:     int(item.Get("duration_ms").Int()),
	}
	for _, artist := range item.Get("artists").Array() {
		if name := artist.Get("name").String(); name != "" {
			snap.ArtistNames = append(snap.ArtistNames, name)
		}
	}
	// Podcast episodes carry the show instead of album and artists.
	if snap.AlbumArtURL == "" {
		snap.AlbumArtURL = item.Get("images.0.url").String()
	}
	if len(snap.ArtistNames) == 0 {
		if show := item.Get("show.name").String(); show != "" {
			snap.ArtistNames = []string{show}
		}
	}
	return snap
}

func parseDevices(body []byte) []Device {
	if !gjson.ValidBytes(body) {
		log.Debug("spotify api: devices body is not JSON; treating as empty")
		return []Device{}
	}
	list := gjson.GetBytes(body, "devices")
	if !list.IsArray() {
		return []Device{}
	}
	devices := make([]Device, 0, len(list.Array()))
	list.ForEach(func(_, d gjson.Result) bool {
		if !d.IsObject() {
			return true
		}
		devices = append(devices, Device{
			ID:       d.Get("id").String(),
			Name:     d.Get("name").String(),
			Type:     d.Get("type").String(),
			IsActive: d.Get("is_active").Bool(),
		})
		return true
	})
	return devices
}

// IsReauthenticationRequired reports whether err means the user must log in again.
func IsReauthenticationRequired(err error) bool {
	return errors.Is(err, ErrReauthenticationRequired)
}
