package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/NowPlaying/internal/config"
	"github.com/router-for-me/NowPlaying/internal/util"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// logFileMaxSizeMB is the size at which main.log is rotated.
const logFileMaxSizeMB = 10

var (
	setupOnce      sync.Once
	writerMu       sync.Mutex
	logWriter      *lumberjack.Logger
	ginInfoWriter  *io.PipeWriter
	ginErrorWriter *io.PipeWriter
)

// LogFormatter renders entries as a single line with timestamp, request ID, level
// and caller.
// Format: [2026-01-02 20:14:04] [a1b2c3d4] [info ] [reconciler.go:88] transferring playback device=Desk
type LogFormatter struct{}

// logFieldOrder is the display order for the fields the formatter prints.
var logFieldOrder = []string{"source", "session", "device", "track", "status", "state", "kind", "retry_after", "error"}

// Format renders a single log entry. Known fields print first in logFieldOrder,
// any others follow sorted by key.
func (m *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	buffer := entry.Buffer
	if buffer == nil {
		buffer = &bytes.Buffer{}
	}

	reqID, _ := entry.Data["request_id"].(string)
	if reqID == "" {
		reqID = "--------"
	}
	level := entry.Level.String()
	if entry.Level == log.WarnLevel {
		level = "warn"
	}

	fmt.Fprintf(buffer, "[%s] [%s] [%-5s] ", entry.Time.Format("2006-01-02 15:04:05"), reqID, level)
	if entry.Caller != nil {
		fmt.Fprintf(buffer, "[%s:%d] ", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	buffer.WriteString(strings.TrimRight(entry.Message, "\r\n"))
	for _, key := range fieldKeys(entry.Data) {
		fmt.Fprintf(buffer, " %s=%v", key, entry.Data[key])
	}
	buffer.WriteByte('\n')
	return buffer.Bytes(), nil
}

func fieldKeys(data log.Fields) []string {
	keys := make([]string, 0, len(data))
	for _, key := range logFieldOrder {
		if _, ok := data[key]; ok {
			keys = append(keys, key)
		}
	}
	var rest []string
	for key := range data {
		if key != "request_id" && !slices.Contains(logFieldOrder, key) {
			rest = append(rest, key)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

// SetupBaseLogger configures the shared logrus instance and Gin writers.
// It is safe to call multiple times; initialization happens only once.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&LogFormatter{})

		ginInfoWriter = log.StandardLogger().Writer()
		gin.DefaultWriter = ginInfoWriter
		ginErrorWriter = log.StandardLogger().WriterLevel(log.ErrorLevel)
		gin.DefaultErrorWriter = ginErrorWriter
		gin.DebugPrintFunc = func(format string, values ...interface{}) {
			format = strings.TrimRight(format, "\r\n")
			log.StandardLogger().Infof(format, values...)
		}

		log.RegisterExitHandler(closeLogOutputs)
	})
}

func isDirWritable(dir string) bool {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return false
	}
	probe, err := os.CreateTemp(dir, ".nowplaying-probe-*")
	if err != nil {
		return false
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
	return true
}

// ResolveLogDirectory determines the directory used for application logs. The
// writable path override wins; otherwise ./logs is used when writable and the
// directory of a file based credential store as a last resort.
func ResolveLogDirectory(cfg *config.Config) string {
	logDir := "logs"
	if base := util.WritablePath(); base != "" {
		return filepath.Join(base, "logs")
	}
	if cfg == nil || isDirWritable(logDir) {
		return logDir
	}
	switch cfg.CredentialStore.Type {
	case config.StoreFile, config.StoreSQLite:
		if cfg.CredentialStore.Path == "" {
			break
		}
		resolved, err := util.ResolvePath(cfg.CredentialStore.Path)
		if err != nil {
			log.Warnf("Failed to resolve credential path %q for log directory: %v", cfg.CredentialStore.Path, err)
			break
		}
		logDir = filepath.Join(filepath.Dir(resolved), "logs")
	}
	return logDir
}

// ConfigureLogOutput switches the global log destination between rotating files and stdout.
// When LogsMaxTotalSizeMB > 0, a background cleaner removes the oldest log files
// until the directory is within the limit.
func ConfigureLogOutput(cfg *config.Config) error {
	SetupBaseLogger()

	writerMu.Lock()
	defer writerMu.Unlock()

	logDir := ResolveLogDirectory(cfg)

	protectedPath := ""
	if cfg.LoggingToFile {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("logging: failed to create log directory: %w", err)
		}
		if logWriter != nil {
			_ = logWriter.Close()
		}
		protectedPath = filepath.Join(logDir, "main.log")
		logWriter = &lumberjack.Logger{
			Filename:  protectedPath,
			MaxSize:   logFileMaxSizeMB,
			LocalTime: true,
			Compress:  true,
		}
		log.SetOutput(logWriter)
	} else {
		if logWriter != nil {
			_ = logWriter.Close()
			logWriter = nil
		}
		log.SetOutput(os.Stdout)
	}

	configureLogDirCleanerLocked(logDir, cfg.LogsMaxTotalSizeMB, protectedPath)
	return nil
}

// SetOutput redirects logs to w, used while a terminal UI owns stdout.
func SetOutput(w io.Writer) {
	writerMu.Lock()
	defer writerMu.Unlock()
	if logWriter != nil {
		return
	}
	log.SetOutput(w)
}

func closeLogOutputs() {
	writerMu.Lock()
	defer writerMu.Unlock()

	stopLogDirCleanerLocked()
	if logWriter != nil {
		_ = logWriter.Close()
	}
	for _, w := range []*io.PipeWriter{ginInfoWriter, ginErrorWriter} {
		if w != nil {
			_ = w.Close()
		}
	}
	logWriter, ginInfoWriter, ginErrorWriter = nil, nil, nil
}
