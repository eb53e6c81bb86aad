// Package logging builds the process logger. Output goes to stderr so the
// stdio transport keeps stdout for protocol messages.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options configure New
type Options struct {
	// Level is a logrus level name; empty means info
	Level string
	// File, when set, receives a copy of every entry
	File string
	// Output defaults to os.Stderr
	Output io.Writer
	// JSON selects logrus.JSONFormatter instead of text
	JSON bool
}

// New creates a logger. The returned close function releases the log file
// and is safe to call when no file was opened.
func New(opts Options) (*logrus.Logger, func() error, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if name := strings.TrimSpace(opts.Level); name != "" {
		parsed, err := logrus.ParseLevel(name)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", name, err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	closeFn := func() error { return nil }
	if path := strings.TrimSpace(opts.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			logger.WithError(err).Warn("failed to create directory for log file; using stderr only")
			return logger, closeFn, nil
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.WithError(err).Warn("failed to open log file; using stderr only")
			return logger, closeFn, nil
		}
		logger.SetOutput(io.MultiWriter(out, f))
		logger.WithField("file", path).Debug("logging to file enabled")
		closeFn = f.Close
	}

	return logger, closeFn, nil
}

// Discard returns an entry that drops everything
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
