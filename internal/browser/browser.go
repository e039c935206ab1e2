// Package browser opens the Spotify authorization page in the user's default browser.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

// linuxBrowsers lists launchers tried in order when open-golang fails on Linux.
var linuxBrowsers = []string{"xdg-open", "x-www-browser", "www-browser", "firefox", "chromium", "google-chrome"}

// lookPath and openRun are swapped in tests.
var (
	lookPath = exec.LookPath
	openRun  = open.Run
)

// OpenURL opens the specified URL in the default web browser.
// It first attempts open-golang and falls back to platform-specific commands.
func OpenURL(url string) error {
	err := openRun(url)
	if err == nil {
		log.Debug("opened browser using open-golang")
		return nil
	}
	log.Debugf("open-golang failed: %v, trying platform-specific commands", err)

	name, args, errCmd := platformCommand(runtime.GOOS, url)
	if errCmd != nil {
		return errCmd
	}
	cmd := exec.Command(name, args...)
	log.Debugf("running browser command: %s", name)
	if err = cmd.Start(); err != nil {
		return fmt.Errorf("failed to start browser command: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// platformCommand resolves the launcher for goos.
func platformCommand(goos, url string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	case "linux", "freebsd", "openbsd":
		for _, candidate := range linuxBrowsers {
			if _, err := lookPath(candidate); err == nil {
				return candidate, []string{url}, nil
			}
		}
		return "", nil, fmt.Errorf("no suitable browser found on %s", goos)
	default:
		return "", nil, fmt.Errorf("unsupported operating system: %s", goos)
	}
}

// IsAvailable reports whether a browser launcher exists on this system. It never
// opens a window.
func IsAvailable() bool {
	switch runtime.GOOS {
	case "darwin":
		_, err := lookPath("open")
		return err == nil
	case "windows":
		_, err := lookPath("rundll32")
		return err == nil
	default:
		for _, candidate := range linuxBrowsers {
			if _, err := lookPath(candidate); err == nil {
				return true
			}
		}
		return false
	}
}
