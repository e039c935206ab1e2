package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/router-for-me/NowPlaying/internal/auth/spotify"
	"github.com/router-for-me/NowPlaying/internal/config"
	"github.com/router-for-me/NowPlaying/internal/misc"
	sdkAuth "github.com/router-for-me/NowPlaying/sdk/auth"
	log "github.com/sirupsen/logrus"
)

// LoginOptions contains options for the login process.
type LoginOptions struct {
	// NoBrowser indicates whether to skip opening the browser automatically.
	NoBrowser bool

	// CallbackPort overrides the local OAuth callback port when set (>0).
	CallbackPort int

	// Prompt allows the caller to provide interactive input when needed.
	Prompt func(prompt string) (string, error)
}

// newAuthManager creates the token manager backed by the given credential store.
func newAuthManager(cfg *config.Config, store sdkAuth.CredentialStore) *sdkAuth.Manager {
	return sdkAuth.NewManager(spotify.NewSpotifyAuth(cfg), store)
}

// DoLogin runs the Spotify PKCE login from the command line and stores the refresh
// token in the configured credential store. A server started later, or one already
// watching the same credential file, picks the session up.
func DoLogin(cfg *config.Config, options *LoginOptions) {
	if options == nil {
		options = &LoginOptions{}
	}
	if cfg.CredentialStore.Type == config.StoreMemory {
		log.Warn("credential-store.type is memory; the login will not outlive this process")
	}

	promptFn := options.Prompt
	if promptFn == nil {
		promptFn = defaultPrompt()
	}

	ctx := context.Background()
	credStore, err := openCredentialStore(ctx, cfg)
	if err != nil {
		log.Errorf("failed to open credential store: %v", err)
		return
	}
	defer credStore.close()

	manager := newAuthManager(cfg, credStore)
	misc.LogLoginSection("start")
	err = manager.Login(ctx, cfg.Spotify.RedirectURI, &sdkAuth.LoginOptions{
		NoBrowser:    options.NoBrowser,
		CallbackPort: options.CallbackPort,
		Prompt:       promptFn,
	})
	misc.LogLoginSection("done")
	if err != nil {
		if authErr, ok := errors.AsType[*spotify.AuthenticationError](err); ok {
			log.Error(spotify.GetUserFriendlyMessage(authErr))
			if authErr.Type == spotify.ErrPortInUse.Type {
				os.Exit(spotify.ErrPortInUse.Code)
			}
			return
		}
		fmt.Printf("Spotify authentication failed: %v\n", err)
		return
	}

	misc.LogSavingCredentials(credStore.location)
	fmt.Println("Spotify authentication successful!")
}

// DoLogout clears both credential slots of the configured store.
func DoLogout(cfg *config.Config) {
	ctx := context.Background()
	credStore, err := openCredentialStore(ctx, cfg)
	if err != nil {
		log.Errorf("failed to open credential store: %v", err)
		return
	}
	defer credStore.close()

	newAuthManager(cfg, credStore).Logout(ctx)
	fmt.Println("Spotify credentials cleared.")
}

// defaultPrompt reads one line from stdin. An empty line keeps waiting for the
// browser redirect.
func defaultPrompt() func(string) (string, error) {
	reader := bufio.NewReader(os.Stdin)
	return func(prompt string) (string, error) {
		fmt.Println()
		fmt.Print(prompt)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
