// Package log builds the logrus logger shared by the CLI and the library.
package log

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Output formats accepted by New
const (
	FormatText = "text"
	FormatJSON = "json"
)

const timestampFormat = "15:04:05.000"

// New creates a logger writing to out at the named level ("debug", "info", ...)
// in either text or JSON format. An empty format means text.
func New(out io.Writer, level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	switch strings.ToLower(format) {
	case "", FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: timestampFormat})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	default:
		return nil, fmt.Errorf("unknown log format '%s' (want %s or %s)", format, FormatText, FormatJSON)
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level '%s': %w", level, err)
	}
	logger.SetLevel(lvl)
	return logger, nil
}

// Discard returns an entry that drops everything, for callers that do not log
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
