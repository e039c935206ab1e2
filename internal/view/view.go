// Package view projects playback snapshots into the handful of fields the page and the
// terminal UI display, and fans rendered views out to their consumers.
package view

import (
	"strings"

	"github.com/router-for-me/NowPlaying/internal/player"
)

// Status is the outcome of one reconciliation tick as far as the display cares.
type Status int

const (
	// StatusLoggedOut shows only the login control.
	StatusLoggedOut Status = iota
	// StatusPlayback renders the snapshot (or "nothing playing" when it is nil).
	StatusPlayback
	// StatusNoActiveDevice means no device could be found or activated.
	StatusNoActiveDevice
	// StatusPremiumRequired is shown for 403 responses.
	StatusPremiumRequired
	// StatusRateLimited is shown while ticks are skipped after a 429.
	StatusRateLimited
	// StatusError is shown for transient failures.
	StatusError
)

// Display strings.
const (
	TextLogin           = "Log in with Spotify"
	TextNoTrack         = "No track playing"
	TextNoPlayback      = "No active playback"
	TextNoActiveDevice  = "No active device available"
	TextPremiumRequired = "Spotify Premium required"
	TextRateLimited     = "Spotify is rate limiting requests, retrying shortly"
	TextError           = "Unable to reach Spotify"
)

// View is what a page or terminal renders.
type View struct {
	LoggedIn   bool   `json:"logged_in"`
	Title      string `json:"title"`
	Artists    string `json:"artists"`
	ArtworkURL string `json:"artwork_url"`
	StatusText string `json:"status_text"`
	IsPlaying  bool   `json:"is_playing"`
	TrackID    string `json:"track_id,omitempty"`
	TrackURL   string `json:"track_url,omitempty"`
	Lyrics     string `json:"lyrics,omitempty"`
	ProgressMs int    `json:"progress_ms,omitempty"`
	DurationMs int    `json:"duration_ms,omitempty"`
}

// Project converts a snapshot and tick status into a View. It has no side effects.
func Project(snap *player.Snapshot, status Status) View {
	if status == StatusLoggedOut {
		return View{StatusText: TextLogin}
	}

	v := View{LoggedIn: true, Title: TextNoTrack}
	if snap != nil {
		v.Title = snap.TrackName
		v.Artists = strings.Join(snap.ArtistNames, ", ")
		v.ArtworkURL = snap.AlbumArtURL
		v.IsPlaying = snap.IsPlaying
		v.TrackID = snap.TrackID
		v.TrackURL = snap.TrackURL
		v.ProgressMs = snap.ProgressMs
		v.DurationMs = snap.DurationMs
	}

	switch status {
	case StatusNoActiveDevice:
		v.StatusText = TextNoActiveDevice
	case StatusPremiumRequired:
		v.StatusText = TextPremiumRequired
	case StatusRateLimited:
		v.StatusText = TextRateLimited
	case StatusError:
		v.StatusText = TextError
	default:
		v.StatusText = playbackText(snap)
	}
	return v
}

func playbackText(snap *player.Snapshot) string {
	if snap == nil {
		return TextNoPlayback
	}
	verb := "Paused"
	if snap.IsPlaying {
		verb = "Now Playing"
	}
	if snap.DeviceName == "" {
		return verb
	}
	return verb + " on " + snap.DeviceName
}
