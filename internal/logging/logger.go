// Package logging builds the hclog loggers used across pypack.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	EnvLogLevel = "PYPACK_LOG_LEVEL"
	EnvJSONLog  = "PYPACK_JSON_LOG"
	EnvLogPath  = "PYPACK_LOG_PATH"

	defaultLevel = "info"
	linePrefix   = "pypack | "
)

// NewLogger creates an hclog logger with UTC timestamps. A level of the form
// "json:debug" switches to JSON output regardless of PYPACK_JSON_LOG.
func NewLogger(name, level string, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}

	jsonFormat := os.Getenv(EnvJSONLog) == "1"
	if rest, ok := strings.CutPrefix(level, "json"); ok {
		jsonFormat = true
		level = strings.TrimPrefix(rest, ":")
		if level == "" {
			level = defaultLevel
		}
	}

	if !jsonFormat {
		output = NewPrefixWriter(linePrefix, output)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// ResolveLevel picks the log level: explicit flag, then PYPACK_LOG_LEVEL, then info.
// The second return value names where the level came from.
func ResolveLevel(cliLevel string) (string, string) {
	if cliLevel != "" {
		return cliLevel, "--log-level"
	}
	if env := os.Getenv(EnvLogLevel); env != "" {
		return env, EnvLogLevel
	}
	return defaultLevel, "default"
}

// OpenOutput returns the log destination: PYPACK_LOG_PATH when set and
// writable, stderr otherwise. The returned close func is never nil.
func OpenOutput() (io.Writer, func() error) {
	if path := os.Getenv(EnvLogPath); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			return f, f.Close
		}
	}
	return os.Stderr, func() error { return nil }
}
