package view

import (
	"testing"

	"github.com/router-for-me/NowPlaying/internal/player"
)

func TestProject(t *testing.T) {
	t.Parallel()

	playing := &player.Snapshot{
		IsPlaying:      true,
		DeviceID:       "d",
		DeviceName:     "Laptop",
		DeviceIsActive: true,
		TrackID:        "t1",
		TrackName:      "Song",
		ArtistNames:    []string{"A", "B"},
		AlbumArtURL:    "https://img/large",
	}
	paused := *playing
	paused.IsPlaying = false

	tests := []struct {
		name   string
		snap   *player.Snapshot
		status Status
		want   View
	}{
		{
			name:   "LoggedOut",
			snap:   playing,
			status: StatusLoggedOut,
			want:   View{StatusText: TextLogin},
		},
		{
			name:   "Playing",
			snap:   playing,
			status: StatusPlayback,
			want:   View{LoggedIn: true, Title: "Song", Artists: "A, B", ArtworkURL: "https://img/large", StatusText: "Now Playing on Laptop", IsPlaying: true, TrackID: "t1"},
		},
		{
			name:   "Paused",
			snap:   &paused,
			status: StatusPlayback,
			want:   View{LoggedIn: true, Title: "Song", Artists: "A, B", ArtworkURL: "https://img/large", StatusText: "Paused on Laptop", TrackID: "t1"},
		},
		{
			name:   "NothingPlaying",
			status: StatusPlayback,
			want:   View{LoggedIn: true, Title: TextNoTrack, StatusText: TextNoPlayback},
		},
		{
			name:   "NoActiveDevice",
			status: StatusNoActiveDevice,
			want:   View{LoggedIn: true, Title: TextNoTrack, StatusText: TextNoActiveDevice},
		},
		{
			name:   "PremiumRequired",
			status: StatusPremiumRequired,
			want:   View{LoggedIn: true, Title: TextNoTrack, StatusText: TextPremiumRequired},
		},
		{
			name:   "Error",
			status: StatusError,
			want:   View{LoggedIn: true, Title: TextNoTrack, StatusText: TextError},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Project(tt.snap, tt.status); got != tt.want {
				t.Fatalf("Project() = %+v\nwant %+v", got, tt.want)
			}
		})
	}
}

func TestProjectWithoutDeviceName(t *testing.T) {
	t.Parallel()

	got := Project(&player.Snapshot{IsPlaying: true, TrackName: "Song"}, StatusPlayback)
	if got.StatusText != "Now Playing" {
		t.Fatalf("StatusText = %q", got.StatusText)
	}
}

type recorder struct{ views []View }

func (r *recorder) Render(v View) { r.views = append(r.views, v) }

func TestDedupeRenderer(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	d := NewDedupeRenderer(rec, true)

	song := View{LoggedIn: true, TrackID: "t1", Title: "Song", StatusText: "Now Playing on X"}
	progressed := song
	progressed.ProgressMs = 5000

	d.Render(song)
	d.Render(progressed)
	if len(rec.views) != 1 {
		t.Fatalf("progress-only change rendered: %d views", len(rec.views))
	}

	pausedView := song
	pausedView.StatusText = "Paused on X"
	d.Render(pausedView)
	if len(rec.views) != 2 {
		t.Fatalf("status change not rendered")
	}

	d.Forget()
	d.Render(pausedView)
	if len(rec.views) != 3 {
		t.Fatalf("Forget did not force a render")
	}

	d.SetEnabled(false)
	d.Render(pausedView)
	d.Render(pausedView)
	if len(rec.views) != 5 {
		t.Fatalf("disabled dedupe must forward everything, got %d", len(rec.views))
	}
}

func TestMultiRendererAndLatest(t *testing.T) {
	t.Parallel()

	latest := NewLatest()
	if latest.Current().LoggedIn || latest.Current().StatusText != TextLogin {
		t.Fatalf("initial view = %+v", latest.Current())
	}

	var calls int
	multi := MultiRenderer{latest, nil, RendererFunc(func(View) { calls++ })}
	multi.Render(View{LoggedIn: true, Title: "Song"})
	if calls != 1 || latest.Current().Title != "Song" {
		t.Fatalf("calls=%d latest=%+v", calls, latest.Current())
	}
}
