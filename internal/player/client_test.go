package player

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/gjson"
)

const playingBody = `{
  "is_playing": true,
  "progress_ms": 1200,
  "device": {"id": "dev1", "name": "Laptop", "type": "Computer", "is_active": true},
  "item": {
    "id": "track1",
    "name": "Song",
    "duration_ms": 200000,
    "external_urls": {"spotify": "https://open.spotify.com/track/track1"},
    "artists": [{"name": "A"}, {"name": "B"}],
    "album": {"name": "Album", "images": [{"url": "https://i.scdn.co/large"}, {"url": "https://i.scdn.co/small"}]}
  }
}`

type fakeTokens struct {
	mu      sync.Mutex
	token   string
	err     error
	resets  int
	lastErr error
}

func (f *fakeTokens) EnsureValidToken(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func (f *fakeTokens) Reset(_ context.Context, cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.lastErr = cause
	f.token = ""
	f.err = errors.New("not authenticated")
}

func (f *fakeTokens) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakeTokens) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokens := &fakeTokens{token: "AT1"}
	return NewClient(tokens, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithRateLimit(1000)), tokens
}

func TestGetPlaybackStateParsesSnapshot(t *testing.T) {
	t.Parallel()

	var gotAuth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/me/player" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, playingBody)
	})

	snap, err := client.GetPlaybackState(context.Background())
	if err != nil {
		t.Fatalf("GetPlaybackState() error = %v", err)
	}
	if gotAuth != "Bearer AT1" {
		t.Fatalf("Authorization = %q, want Bearer AT1", gotAuth)
	}
	if snap == nil {
		t.Fatalf("expected snapshot")
	}
	if !snap.IsPlaying || !snap.HasActiveDevice() || snap.DeviceName != "Laptop" {
		t.Fatalf("unexpected device fields: %+v", snap)
	}
	if snap.TrackID != "track1" || snap.TrackName != "Song" || snap.AlbumArtURL != "https://i.scdn.co/large" {
		t.Fatalf("unexpected track fields: %+v", snap)
	}
	if len(snap.ArtistNames) != 2 || snap.ArtistNames[0] != "A" || snap.ArtistNames[1] != "B" {
		t.Fatalf("artists = %v", snap.ArtistNames)
	}
	if snap.DurationMs != 200000 || snap.ProgressMs != 1200 {
		t.Fatalf("timing = %d/%d", snap.ProgressMs, snap.DurationMs)
	}
}

func TestGetPlaybackStateClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		header     map[string]string
		wantNil    bool
		wantErr    error
		wantKind   Kind
		wantResets int
		wantRetry  time.Duration
	}{
		{name: "NoContent", status: http.StatusNoContent, wantNil: true},
		{name: "NoItem", status: http.StatusOK, body: `{"is_playing":false,"device":{"id":"d","is_active":true}}`, wantNil: true},
		{name: "NullItem", status: http.StatusOK, body: `{"item":null}`, wantNil: true},
		{name: "NotJSON", status: http.StatusOK, body: `<html>`, wantNil: true},
		{name: "Forbidden", status: http.StatusForbidden, body: `{"error":{"status":403,"message":"Player command failed: Premium required","reason":"PREMIUM_REQUIRED"}}`, wantErr: ErrForbidden, wantKind: KindForbidden},
		{name: "Unauthorized", status: http.StatusUnauthorized, body: `{"error":{"status":401,"message":"The access token expired"}}`, wantErr: ErrReauthenticationRequired, wantKind: KindUnauthorized, wantResets: 1},
		{name: "RateLimited", status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": "7"}, wantErr: ErrRateLimited, wantKind: KindRateLimited, wantRetry: 7 * time.Second},
		{name: "ServerError", status: http.StatusBadGateway, wantErr: ErrTransient, wantKind: KindTransient},
		{name: "NotFound", status: http.StatusNotFound, body: `{"error":{"status":404,"message":"Not found"}}`, wantErr: ErrTransient, wantKind: KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				if tt.body != "" {
					_, _ = io.WriteString(w, tt.body)
				}
			})

			snap, err := client.GetPlaybackState(context.Background())
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("GetPlaybackState() error = %v", err)
				}
				if tt.wantNil && snap != nil {
					t.Fatalf("expected absent snapshot, got %+v", snap)
				}
			} else {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if KindOf(err) != tt.wantKind {
					t.Fatalf("kind = %v, want %v", KindOf(err), tt.wantKind)
				}
				if got := RetryAfter(err); got != tt.wantRetry {
					t.Fatalf("RetryAfter = %v, want %v", got, tt.wantRetry)
				}
			}
			if got := tokens.resetCount(); got != tt.wantResets {
				t.Fatalf("resets = %d, want %d", got, tt.wantResets)
			}
		})
	}
}

func TestForbiddenIsDistinctFromAbsentAndUnauthorized(t *testing.T) {
	t.Parallel()

	client, tokens := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	snap, err := client.GetPlaybackState(context.Background())
	if err == nil || snap != nil {
		t.Fatalf("403 must be an error, got snap=%v err=%v", snap, err)
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrReauthenticationRequired) {
		t.Fatalf("403 must not look like 401: %v", err)
	}
	if tokens.resetCount() != 0 {
		t.Fatalf("403 must not reset credentials")
	}
}

func TestUnauthorizedFromAnyCallResets(t *testing.T) {
	t.Parallel()

	client, tokens := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	if _, err := client.ListDevices(context.Background()); !IsReauthenticationRequired(err) {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if tokens.resetCount() != 1 {
		t.Fatalf("resets = %d, want 1", tokens.resetCount())
	}

	// Credentials are gone; the next call fails before reaching the network.
	if err := client.TransferPlayback(context.Background(), "dev", true); !IsReauthenticationRequired(err) {
		t.Fatalf("TransferPlayback() error = %v", err)
	}
	if tokens.resetCount() != 1 {
		t.Fatalf("a missing token must not reset again")
	}
}

func TestListDevices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []Device
	}{
		{
			name: "Ordered",
			body: `{"devices":[{"id":"p","name":"Phone","type":"Smartphone","is_active":false},{"id":"c","name":"Desk","type":"Computer","is_active":true}]}`,
			want: []Device{{ID: "p", Name: "Phone", Type: "Smartphone"}, {ID: "c", Name: "Desk", Type: "Computer", IsActive: true}},
		},
		{name: "NotJSON", body: `oops`, want: []Device{}},
		{name: "WrongShape", body: `{"devices":"none"}`, want: []Device{}},
		{name: "Empty", body: ``, want: []Device{}},
		{name: "SkipsNonObjects", body: `{"devices":[1,{"id":"x","name":"X","type":"Speaker"}]}`, want: []Device{{ID: "x", Name: "X", Type: "Speaker"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/me/player/devices" {
					t.Errorf("path = %s", r.URL.Path)
				}
				_, _ = io.WriteString(w, tt.body)
			})
			got, err := client.ListDevices(context.Background())
			if err != nil {
				t.Fatalf("ListDevices() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("devices = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("device[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTransferPlaybackBody(t *testing.T) {
	t.Parallel()

	var method, contentType string
	var body []byte
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.TransferPlayback(context.Background(), "dev42", true); err != nil {
		t.Fatalf("TransferPlayback() error = %v", err)
	}
	if method != http.MethodPut || contentType != "application/json" {
		t.Fatalf("method=%s content-type=%s", method, contentType)
	}
	if got := gjson.GetBytes(body, "device_ids.0").String(); got != "dev42" {
		t.Fatalf("device_ids[0] = %q in %s", got, body)
	}
	if gjson.GetBytes(body, "device_ids.#").Int() != 1 || !gjson.GetBytes(body, "play").Bool() {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestTransferPlaybackUnknownDevice(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"status":404,"message":"Device not found"}}`)
	})
	err := client.TransferPlayback(context.Background(), "gone", false)
	if !errors.Is(err, ErrNoActiveDevice) {
		t.Fatalf("error = %v, want ErrNoActiveDevice", err)
	}
}

func TestTransferPlaybackRejectsEmptyDevice(t *testing.T) {
	t.Parallel()

	client := NewClient(&fakeTokens{token: "AT1"})
	if err := client.TransferPlayback(context.Background(), "", false); !errors.Is(err, ErrNoActiveDevice) {
		t.Fatalf("error = %v, want ErrNoActiveDevice", err)
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient(&fakeTokens{token: "AT1"}, WithBaseURL(url))
	_, err := client.GetPlaybackState(context.Background())
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("error = %v, want ErrTransient", err)
	}
}

func TestCompressedResponses(t *testing.T) {
	t.Parallel()

	encoders := map[string]func([]byte) []byte{
		"gzip": func(in []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			_, _ = w.Write(in)
			_ = w.Close()
			return buf.Bytes()
		},
		"deflate": func(in []byte) []byte {
			var buf bytes.Buffer
			w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
			_, _ = w.Write(in)
			_ = w.Close()
			return buf.Bytes()
		},
		"br": func(in []byte) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			_, _ = w.Write(in)
			_ = w.Close()
			return buf.Bytes()
		},
		"zstd": func(in []byte) []byte {
			enc, _ := zstd.NewWriter(nil)
			defer func() { _ = enc.Close() }()
			return enc.EncodeAll(in, nil)
		},
	}

	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			payload := encode([]byte(playingBody))
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Accept-Encoding") == "" {
					t.Errorf("Accept-Encoding not sent")
				}
				w.Header().Set("Content-Encoding", name)
				_, _ = w.Write(payload)
			})
			snap, err := client.GetPlaybackState(context.Background())
			if err != nil {
				t.Fatalf("GetPlaybackState() error = %v", err)
			}
			if snap == nil || snap.TrackID != "track1" {
				t.Fatalf("snapshot = %+v", snap)
			}
		})
	}
}

func TestParseSnapshotEpisodeFallbacks(t *testing.T) {
	t.Parallel()

	snap := parseSnapshot([]byte(`{"is_playing":true,"item":{"id":"ep","name":"Episode","images":[{"url":"https://img/ep"}],"show":{"name":"The Show"}}}`))
	if snap == nil || snap.AlbumArtURL != "https://img/ep" || len(snap.ArtistNames) != 1 || snap.ArtistNames[0] != "The Show" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.HasActiveDevice() {
		t.Fatalf("snapshot without device must not report an active device")
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{now.Add(10 * time.Second).Format(http.TimeFormat), 10 * time.Second},
		{now.Add(-10 * time.Second).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		body string
		want string
	}{
		{`{"error":{"status":403,"message":"Premium required","reason":"PREMIUM_REQUIRED"}}`, "Premium required (PREMIUM_REQUIRED)"},
		{`{"error":{"status":401,"message":"expired"}}`, "expired"},
		{`plain text`, "plain text"},
		{``, ""},
	}
	for _, tt := range tests {
		if got := errorMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("errorMessage(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
