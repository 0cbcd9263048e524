// Package logging configures the process-wide structured logger. Log lines
// go to stderr so stdout stays reserved for the pass's final outcome
// message; a log file can be added for unattended runs.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Log is the package-global logger configured by Init
var Log zerolog.Logger

// Get returns a pointer to the package-global logger
func Get() *zerolog.Logger {
	return &Log
}

// Init configures the global logger and returns a cleanup func closing the
// log file, if any. An empty level means "info"; an unrecognized level is a
// configuration error, not a silent default.
func Init(logFilePath, level string) (func(), error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(lvl)

	writers := []io.Writer{os.Stderr}
	var f *os.File
	if logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o700); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		// 0640 keeps logs from being world-readable while allowing group read
		f, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
	}

	Log = zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger()
	return func() {
		if f != nil {
			_ = f.Close()
		}
	}, nil
}

func parseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}
