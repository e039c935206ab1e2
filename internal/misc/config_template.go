package misc

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// InstallConfigTemplate copies the example config at src to dst when dst does not
// exist yet. It reports whether a file was written; an existing dst is left alone.
func InstallConfigTemplate(src, dst string) (bool, error) {
	in, err := os.Open(src)
	if err != nil {
		return false, fmt.Errorf("open config template: %w", err)
	}
	defer func() { _ = in.Close() }()

	if err = os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return false, fmt.Errorf("create config directory: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("create config file: %w", err)
	}

	_, errCopy := io.Copy(out, in)
	if errCopy == nil {
		errCopy = out.Sync()
	}
	if errClose := out.Close(); errCopy == nil {
		errCopy = errClose
	}
	if errCopy != nil {
		_ = os.Remove(dst)
		return false, fmt.Errorf("write config file: %w", errCopy)
	}
	return true, nil
}
