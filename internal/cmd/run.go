package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/router-for-me/NowPlaying/internal/api"
	"github.com/router-for-me/NowPlaying/internal/config"
	"github.com/router-for-me/NowPlaying/internal/hub"
	"github.com/router-for-me/NowPlaying/internal/logging"
	"github.com/router-for-me/NowPlaying/internal/lyrics"
	"github.com/router-for-me/NowPlaying/internal/player"
	"github.com/router-for-me/NowPlaying/internal/poller"
	"github.com/router-for-me/NowPlaying/internal/tui"
	"github.com/router-for-me/NowPlaying/internal/util"
	"github.com/router-for-me/NowPlaying/internal/view"
	"github.com/router-for-me/NowPlaying/internal/watcher"
	sdkAuth "github.com/router-for-me/NowPlaying/sdk/auth"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ServiceOptions selects the surfaces started next to the HTTP server.
type ServiceOptions struct {
	// TUI runs the terminal UI in the foreground; quitting it stops the service.
	TUI bool
	// LogHook receives log lines for the terminal UI. Required when TUI is set.
	LogHook *tui.LogHook
	// Output is the terminal the UI draws on; os.Stdout when nil.
	Output io.Writer
}

// service holds the running components so hot reload can reach them.
type service struct {
	mu     sync.RWMutex
	cfg    *config.Config
	lyrics *lyrics.Client

	manager *sdkAuth.Manager
	rec     *poller.Reconciler
	loop    *poller.Loop
	dedupe  *view.DedupeRenderer
	server  *api.Server
	hub     *hub.Hub
	store   *credentialStore
}

// StartService runs the NowPlaying server until SIGINT/SIGTERM, or until the
// terminal UI exits when opts.TUI is set.
func StartService(cfg *config.Config, configFilePath string, opts ServiceOptions) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runService(ctx, cfg, configFilePath, opts); err != nil {
		log.Errorf("NowPlaying stopped with error: %v", err)
		return
	}
	log.Info("NowPlaying stopped")
}

func runService(ctx context.Context, cfg *config.Config, configFilePath string, opts ServiceOptions) error {
	credStore, err := openCredentialStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer credStore.close()

	svc := &service{cfg: cfg, store: credStore}
	svc.manager = newAuthManager(cfg, credStore)

	latest := view.NewLatest()
	svc.hub = hub.New(hub.Options{
		Path:    "/ws",
		Current: latest.Current,
		OnConnected: func(id string) {
			log.WithField("session", id).Debug("page connected")
		},
		OnDisconnected: func(id string, cause error) {
			svc.loop.RemoveSource(id)
			if cause != nil {
				log.WithField("session", id).Debugf("page disconnected: %v", cause)
			}
		},
		OnVisibility: func(id string, hidden bool) {
			svc.loop.SetSourceVisible(id, !hidden)
		},
		OnRefresh: func(string) {
			svc.loop.TriggerNow()
		},
	})
	svc.dedupe = view.NewDedupeRenderer(svc.hub, cfg.Render.DedupeTrack)

	// Latest and the terminal see every view so progress stays current; pages only
	// receive views the user would notice.
	renderers := view.MultiRenderer{latest, svc.dedupe}
	var feed *tui.ViewFeed
	if opts.TUI {
		feed = tui.NewViewFeed()
		renderers = append(renderers, feed)
	}

	policy, err := poller.NewDevicePolicy(cfg.Device)
	if err != nil {
		return err
	}
	client := player.NewClient(svc.manager,
		player.WithBaseURL(cfg.Spotify.APIBaseURL),
		player.WithHTTPClient(util.SetProxy(&cfg.SDKConfig, &http.Client{Timeout: player.DefaultTimeout})),
		player.WithRateLimit(cfg.Spotify.RequestsPerSecond),
	)
	svc.rec = poller.NewReconciler(svc.manager, client, renderers, policy, cfg.Device.StartPlayback)
	svc.applyLyrics(cfg)
	defer svc.closeLyrics()
	svc.loop = poller.NewLoop(svc.rec, cfg.Poll)

	svc.manager.OnReset(func(error) {
		svc.rec.RenderLoggedOut()
	})
	svc.manager.OnAuthenticated(svc.loop.TriggerNow)

	if errRestore := svc.manager.Restore(ctx); errRestore != nil {
		log.Warnf("could not restore spotify session: %v", errRestore)
	}
	if !svc.manager.Authenticated() {
		svc.rec.RenderLoggedOut()
	}

	svc.server, err = api.NewServer(api.Options{
		Config: cfg,
		Auth:   svc.manager,
		Views:  latest,
		Loop:   svc.loop,
		Hub:    svc.hub,
	})
	if err != nil {
		return err
	}
	if err = svc.server.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errStop := svc.server.Stop(stopCtx); errStop != nil {
			log.Warnf("server stop: %v", errStop)
		}
	}()

	if configFilePath != "" {
		w, errWatcher := watcher.NewWatcher(configFilePath, credStore.path, svc.reload, svc.credentialsChanged)
		if errWatcher != nil {
			log.Warnf("config hot reload disabled: %v", errWatcher)
		} else {
			w.SetConfig(cfg)
			if errStart := w.Start(ctx); errStart != nil {
				log.Warnf("config hot reload disabled: %v", errStart)
			} else {
				defer func() {
					if errStop := w.Stop(); errStop != nil {
						log.Debugf("watcher stop: %v", errStop)
					}
				}()
			}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(ctx)
	svc.loop.Start(groupCtx)
	defer func() {
		svc.loop.Stop()
		svc.loop.Wait()
	}()

	if opts.TUI {
		group.Go(func() error {
			// The UI returning, for any reason, ends the service.
			defer cancel()
			return svc.runTUI(groupCtx, feed, opts)
		})
	} else {
		log.Infof("open http://%s in a browser to see what is playing", svc.server.Addr())
		group.Go(func() error {
			<-groupCtx.Done()
			return nil
		})
	}
	return group.Wait()
}

// runTUI hands stdout to the terminal UI and routes logs to its logs tab.
func (s *service) runTUI(ctx context.Context, feed *tui.ViewFeed, opts ServiceOptions) error {
	if opts.LogHook != nil {
		opts.LogHook.SetFormatter(&logging.LogFormatter{})
		log.AddHook(opts.LogHook)
	}
	origOut := log.StandardLogger().Out
	logging.SetOutput(io.Discard)
	defer logging.SetOutput(origOut)

	if err := tui.Run(ctx, &tuiController{svc: s}, feed, opts.LogHook, opts.Output); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func (s *service) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// reload applies a changed configuration file.
func (s *service) reload(cfg *config.Config) {
	if err := s.loop.ApplyConfig(cfg); err != nil {
		log.Errorf("config reload rejected: %v", err)
		return
	}
	s.dedupe.SetEnabled(cfg.Render.DedupeTrack)
	s.applyLyrics(cfg)
	s.server.UpdateConfig(cfg)

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	log.Info("configuration reloaded")
}

// credentialsChanged adopts a session written by another process, such as -login
// in a second terminal.
func (s *service) credentialsChanged() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.manager.Restore(ctx); err != nil {
		log.Warnf("could not adopt stored credentials: %v", err)
		return
	}
	s.loop.TriggerNow()
}

// applyLyrics enables, disables or rebuilds the lyrics lookup to match cfg.
func (s *service) applyLyrics(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !cfg.Lyrics.Enabled {
		if s.lyrics != nil {
			s.rec.SetLyrics(nil)
			s.lyrics.Close()
			s.lyrics = nil
			log.Info("lyrics lookup disabled")
		}
		return
	}
	if s.lyrics != nil {
		return
	}
	httpClient := util.SetProxy(&cfg.SDKConfig, &http.Client{Timeout: lyrics.DefaultTimeout})
	s.lyrics = lyrics.NewClient(cfg.Lyrics.BaseURL, httpClient, cfg.Lyrics.TTL)
	s.rec.SetLyrics(s.lyrics)
	log.Info("lyrics lookup enabled")
}

func (s *service) closeLyrics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lyrics != nil {
		s.lyrics.Close()
		s.lyrics = nil
	}
}

// tuiController adapts the service to the terminal UI.
type tuiController struct {
	svc *service
}

func (c *tuiController) InitiateLogin(ctx context.Context) (string, error) {
	return c.svc.manager.InitiateLogin(ctx)
}

func (c *tuiController) Logout(ctx context.Context) {
	c.svc.manager.Logout(ctx)
}

func (c *tuiController) TriggerNow() {
	c.svc.loop.TriggerNow()
}

func (c *tuiController) SetFocused(focused bool) {
	c.svc.loop.SetSourceVisible(tui.FocusSource, focused)
}

func (c *tuiController) Session() tui.Session {
	cfg := c.svc.config()
	return tui.Session{
		AuthState:     c.svc.manager.State().String(),
		Authenticated: c.svc.manager.Authenticated(),
		Polling:       c.svc.loop.Running(),
		Visible:       c.svc.loop.Visible(),
		Viewers:       c.svc.hub.Count(),
		Interval:      cfg.Poll.Interval,
		DevicePolicy:  cfg.Device.Policy,
		Store:         storeName(cfg.CredentialStore.Type),
		PageURL:       "http://" + c.svc.server.Addr(),
	}
}
