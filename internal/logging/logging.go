// Package logging builds the process-wide slog handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Log formats.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps debug/info/warn/error to a slog level. Unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler returns a colorized tint handler for "text", a JSON handler for
// "json", and for "auto" picks tint only when out is a terminal.
func NewHandler(out io.Writer, format string, level slog.Level) slog.Handler {
	if format == FormatAuto || format == "" {
		format = FormatJSON
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = FormatText
		}
	}

	if format == FormatText {
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(out),
		})
	}
	return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
}

// Setup installs the handler as slog's default and returns the logger.
func Setup(format, level string) *slog.Logger {
	logger := slog.New(NewHandler(os.Stderr, format, ParseLevel(level)))
	slog.SetDefault(logger)
	return logger
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
