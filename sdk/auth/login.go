package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/router-for-me/NowPlaying/internal/auth/spotify"
	"github.com/router-for-me/NowPlaying/internal/browser"
	"github.com/router-for-me/NowPlaying/internal/misc"
	"github.com/router-for-me/NowPlaying/internal/util"
	log "github.com/sirupsen/logrus"
)

const (
	loginCallbackTimeout = 5 * time.Minute
	manualPromptDelay    = 15 * time.Second
)

// Login runs the command-line login: a temporary callback server is bound to the
// redirect URI, the browser is sent to Spotify and the redirect is handed to
// HandleRedirect. Users can paste the callback URL when the redirect cannot arrive.
func (m *Manager) Login(ctx context.Context, redirectURI string, opts *LoginOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts == nil {
		opts = &LoginOptions{}
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	listenURI, err := callbackListenURI(redirectURI, opts.CallbackPort)
	if err != nil {
		return err
	}
	oauthServer, err := spotify.NewOAuthServer(listenURI)
	if err != nil {
		return err
	}
	if err = oauthServer.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if stopErr := oauthServer.Stop(stopCtx); stopErr != nil {
			log.Warnf("spotify oauth server stop error: %v", stopErr)
		}
	}()

	authURL, err := m.InitiateLogin(ctx)
	if err != nil {
		return err
	}

	printManual := func() {
		util.PrintSSHTunnelInstructions(out, oauthServer.Port())
		_, _ = fmt.Fprintf(out, "Visit the following URL to log in with Spotify:\n%s\n", authURL)
	}
	if opts.NoBrowser {
		printManual()
	} else {
		_, _ = fmt.Fprintln(out, "Opening browser for Spotify login")
		if !browser.IsAvailable() {
			log.Warn("No browser available; please open the URL manually")
			printManual()
		} else if err = browser.OpenURL(authURL); err != nil {
			log.Warnf("Failed to open browser automatically: %v", err)
			printManual()
		}
	}

	_, _ = fmt.Fprintln(out, "Waiting for Spotify authentication callback...")

	result, err := waitForLoginResult(ctx, oauthServer, opts.Prompt)
	if err != nil {
		m.Reset(ctx, err)
		return err
	}

	if result.Error != "" {
		switch result.Error {
		case "no_code", "no_state":
			err = spotify.NewAuthenticationError(spotify.ErrTokenExchangeFailed, fmt.Errorf("malformed callback: %s", result.Error))
			m.Reset(ctx, err)
			return err
		default:
			return m.HandleAuthorizationError(ctx, result.Error, result.ErrorDescription)
		}
	}

	log.Debug("Spotify authorization code received; exchanging for tokens")
	if err = m.HandleRedirect(ctx, result.Code, result.State); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Spotify authentication successful")
	return nil
}

// waitForLoginResult waits for the redirect and, after manualPromptDelay, offers to
// read a pasted callback URL instead.
func waitForLoginResult(ctx context.Context, oauthServer *spotify.OAuthServer, prompt func(string) (string, error)) (*spotify.OAuthResult, error) {
	callbackCh := make(chan *spotify.OAuthResult, 1)
	callbackErrCh := make(chan error, 1)
	go func() {
		result, errWait := oauthServer.WaitForCallback(ctx, loginCallbackTimeout)
		if errWait != nil {
			callbackErrCh <- errWait
			return
		}
		callbackCh <- result
	}()

	var manualPromptC <-chan time.Time
	if prompt != nil {
		manualPromptTimer := time.NewTimer(manualPromptDelay)
		defer manualPromptTimer.Stop()
		manualPromptC = manualPromptTimer.C
	}

	for {
		select {
		case result := <-callbackCh:
			return result, nil
		case err := <-callbackErrCh:
			if errors.Is(err, spotify.ErrCallbackTimeout) || spotify.IsAuthenticationError(err) {
				return nil, err
			}
			return nil, spotify.NewAuthenticationError(spotify.ErrServerStartFailed, err)
		case <-manualPromptC:
			manualPromptC = nil
			input, errPrompt := prompt("Paste the Spotify callback URL (or press Enter to keep waiting): ")
			if errPrompt != nil {
				return nil, errPrompt
			}
			parsed, errParse := misc.ParseOAuthCallback(input)
			if errParse != nil {
				return nil, errParse
			}
			if parsed == nil {
				continue
			}
			oauthServer.Deliver(&spotify.OAuthResult{
				Code:             parsed.Code,
				State:            parsed.State,
				Error:            parsed.Error,
				ErrorDescription: parsed.ErrorDescription,
			})
		}
	}
}

// callbackListenURI returns redirectURI with its port replaced by port when port > 0.
func callbackListenURI(redirectURI string, port int) (string, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("parse redirect uri: %w", err)
	}
	if port <= 0 {
		return redirectURI, nil
	}
	if port > 65535 {
		return "", fmt.Errorf("invalid callback port %d", port)
	}
	parsed.Host = net.JoinHostPort(parsed.Hostname(), strconv.Itoa(port))
	return parsed.String(), nil
}
