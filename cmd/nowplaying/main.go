// Package main provides the entry point for the NowPlaying server.
// NowPlaying logs in to Spotify with OAuth PKCE, keeps playback on a preferred device
// and shows the current track on a local web page or in the terminal.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/router-for-me/NowPlaying/internal/buildinfo"
	"github.com/router-for-me/NowPlaying/internal/cmd"
	"github.com/router-for-me/NowPlaying/internal/config"
	"github.com/router-for-me/NowPlaying/internal/logging"
	"github.com/router-for-me/NowPlaying/internal/misc"
	"github.com/router-for-me/NowPlaying/internal/tui"
	"github.com/router-for-me/NowPlaying/internal/util"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	var login bool
	var logout bool
	var noBrowser bool
	var oauthCallbackPort int
	var configPath string
	var tuiMode bool

	flag.BoolVar(&login, "login", false, "Login to Spotify using OAuth PKCE")
	flag.BoolVar(&logout, "logout", false, "Clear stored Spotify credentials")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically for OAuth")
	flag.IntVar(&oauthCallbackPort, "oauth-callback-port", 0, "Override OAuth callback port (defaults to the redirect URI port)")
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.BoolVar(&tuiMode, "tui", false, "Show the player in the terminal")
	flag.Parse()

	if !tuiMode {
		fmt.Println(buildinfo.String())
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	configFilePath := configPath
	if configFilePath == "" {
		configFilePath = filepath.Join(wd, "config.yaml")
		if base := util.WritablePath(); base != "" {
			configFilePath = filepath.Join(base, "config.yaml")
		}
	}
	bootstrapConfig(wd, configFilePath)

	cfg, err := config.LoadConfigOptional(configFilePath, configPath == "")
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}
	cfg.ApplyEnv(lookupEnv)
	if err = cfg.Validate(); err != nil {
		log.Errorf("invalid configuration: %v", err)
		return
	}

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}
	util.SetLogLevel(cfg)
	log.Info(buildinfo.String())

	options := &cmd.LoginOptions{
		NoBrowser:    noBrowser,
		CallbackPort: oauthCallbackPort,
	}

	switch {
	case logout:
		cmd.DoLogout(cfg)
	case login:
		cmd.DoLogin(cfg, options)
	case tuiMode:
		cmd.StartService(cfg, configFilePath, cmd.ServiceOptions{
			TUI:     true,
			LogHook: tui.NewLogHook(2000),
			Output:  os.Stdout,
		})
	default:
		cmd.StartService(cfg, configFilePath, cmd.ServiceOptions{})
	}
}

// bootstrapConfig copies config.example.yaml next to a missing config file so users
// have something to edit.
func bootstrapConfig(wd, configFilePath string) {
	examplePath := filepath.Join(wd, "config.example.yaml")
	if _, errExample := os.Stat(examplePath); errExample != nil {
		return
	}
	written, errInstall := misc.InstallConfigTemplate(examplePath, configFilePath)
	if errInstall != nil {
		log.Warnf("failed to create config from template: %v", errInstall)
		return
	}
	if written {
		log.Infof("config initialized from template: %s", configFilePath)
	}
}

func lookupEnv(keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed, true
			}
		}
	}
	return "", false
}
