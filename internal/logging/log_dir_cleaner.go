package logging

import (
	"cmp"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const logDirCleanerInterval = time.Minute

var logDirCleanerCancel context.CancelFunc

// dirCleaner keeps the total size of the log directory under a limit by removing
// the oldest lumberjack backups. The active log file is never removed.
type dirCleaner struct {
	dir      string
	maxBytes int64
	active   string
}

type logFileInfo struct {
	path    string
	size    int64
	modTime time.Time
}

func configureLogDirCleanerLocked(logDir string, maxTotalSizeMB int, activePath string) {
	stopLogDirCleanerLocked()

	dir := strings.TrimSpace(logDir)
	if maxTotalSizeMB <= 0 || dir == "" {
		return
	}
	cleaner := &dirCleaner{
		dir:      filepath.Clean(dir),
		maxBytes: int64(maxTotalSizeMB) << 20,
	}
	if active := strings.TrimSpace(activePath); active != "" {
		cleaner.active = filepath.Clean(active)
	}

	ctx, cancel := context.WithCancel(context.Background())
	logDirCleanerCancel = cancel
	go cleaner.run(ctx, logDirCleanerInterval)
}

func stopLogDirCleanerLocked() {
	if logDirCleanerCancel != nil {
		logDirCleanerCancel()
		logDirCleanerCancel = nil
	}
}

func (d *dirCleaner) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if removed, err := d.sweep(); err != nil {
			log.WithError(err).Warn("logging: failed to enforce log directory size limit")
		} else if removed > 0 {
			log.Debugf("logging: removed %d old log file(s)", removed)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sweep removes the oldest log files until the directory fits and returns how
// many were removed.
func (d *dirCleaner) sweep() (int, error) {
	files, total, err := d.scan()
	if err != nil || total <= d.maxBytes {
		return 0, err
	}

	slices.SortFunc(files, func(a, b logFileInfo) int {
		return cmp.Compare(a.modTime.UnixNano(), b.modTime.UnixNano())
	})

	removed := 0
	for _, f := range files {
		if total <= d.maxBytes {
			break
		}
		if f.path == d.active {
			continue
		}
		if errRemove := os.Remove(f.path); errRemove != nil {
			log.WithError(errRemove).Warnf("logging: failed to remove %s", filepath.Base(f.path))
			continue
		}
		total -= f.size
		removed++
	}
	return removed, nil
}

func (d *dirCleaner) scan() ([]logFileInfo, int64, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	var (
		files []logFileInfo
		total int64
	)
	for _, entry := range entries {
		if entry.IsDir() || !isLogFileName(entry.Name()) {
			continue
		}
		info, errInfo := entry.Info()
		if errInfo != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, logFileInfo{
			path:    filepath.Join(d.dir, entry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		total += info.Size()
	}
	return files, total, nil
}

// isLogFileName matches main.log and its lumberjack backups, compressed or not.
func isLogFileName(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".log") || strings.HasSuffix(lower, ".log.gz")
}
