package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Handler formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options selects the slog handler. Empty fields fall back to the
// environment: JSON at info in production, text at debug with source
// locations elsewhere.
type Options struct {
	Env    string
	Level  string
	Format string
}

// Initialize builds the logger for opts, writing to w, and makes it the
// slog default. The CLI passes os.Stderr so that tables written to stdout
// stay machine readable.
func Initialize(opts Options, w io.Writer) (*slog.Logger, error) {
	production := opts.Env == "production"

	level := slog.LevelDebug
	if production {
		level = slog.LevelInfo
	}
	if opts.Level != "" {
		parsed, err := ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	format := opts.Format
	if format == "" {
		format = FormatText
		if production {
			format = FormatJSON
		}
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: false,
		})
	case FormatText:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: !production,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l, nil
}

// ParseLevel accepts debug, info, warn or error in any case
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
