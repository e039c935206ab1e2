// Package player wraps the three Spotify Web API calls the reconciliation loop needs:
// reading playback state, listing devices and transferring playback. Every response is
// classified into a small set of error kinds so callers can tell "nothing playing"
// apart from "forbidden" and "reauthenticate".
package player

// Snapshot is one observation of the user's playback. A nil *Snapshot with a nil error
// means nothing is playing.
type Snapshot struct {
	IsPlaying bool `json:"is_playing"`

	DeviceID       string `json:"device_id"`
	DeviceName     string `json:"device_name"`
	DeviceType     string `json:"device_type"`
	DeviceIsActive bool   `json:"device_is_active"`

	TrackID     string   `json:"track_id"`
	TrackName   string   `json:"track_name"`
	TrackURL    string   `json:"track_url"`
	ArtistNames []string `json:"artist_names"`
	AlbumName   string   `json:"album_name"`
	AlbumArtURL string   `json:"album_art_url"`

	ProgressMs int `json:"progress_ms"`
	DurationMs int `json:"duration_ms"`
}

// HasActiveDevice reports whether playback is bound to a device Spotify treats as active.
func (s *Snapshot) HasActiveDevice() bool {
	return s != nil && s.DeviceID != "" && s.DeviceIsActive
}

// Device is one entry of the user's available devices.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"is_active"`
}
