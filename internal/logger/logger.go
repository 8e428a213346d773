// Package logger configures the process logger once from the environment.
//
// LOG_LEVEL selects debug, info, warn or error (default info). LOG_FORMAT=json
// selects JSON lines; anything else selects text with full timestamps. Output
// always goes to stderr so stdout stays free for tool output.
package logger

import (
	"os"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	setupOnce sync.Once
	std       *log.Logger
)

// Setup configures and returns the process logger. Later calls return the
// logger configured by the first one.
func Setup() *log.Logger {
	setupOnce.Do(func() {
		std = New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	})
	return std
}

// L returns the process logger, configuring it on first use.
func L() *log.Logger {
	return Setup()
}

// New builds a logger for the given level and format names.
func New(level, format string) *log.Logger {
	l := log.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(ParseLevel(level))

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&log.JSONFormatter{})
	} else {
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return l
}

// ParseLevel maps a level name to a logrus level. Unknown names give info.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
