package log

import (
	"log/slog"
	"os"
	"strings"
)

type options struct {
	level     slog.Level
	addSource bool
}

// Option configures the logger constructor.
type Option func(*options)

// WithLevel sets the minimum log level from its string name.
func WithLevel(level string) Option {
	return func(o *options) {
		switch strings.ToLower(level) {
		case "debug":
			o.level = slog.LevelDebug
		case "warn", "warning":
			o.level = slog.LevelWarn
		case "error":
			o.level = slog.LevelError
		default:
			o.level = slog.LevelInfo
		}
	}
}

// WithSource adds source file annotations to log records.
func WithSource() Option {
	return func(o *options) {
		o.addSource = true
	}
}

// New creates a JSON slog logger writing to stdout.
func New(opts ...Option) *slog.Logger {
	o := options{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(&o)
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     o.level,
		AddSource: o.addSource,
	}))
}
