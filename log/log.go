// Package log builds the process logger.
//
// Console output goes through tint; Format "json" switches to the standard
// JSON handler for machine consumption. Guest log records reach the same
// logger through the hayride:core/log host function, tagged with the silo
// that emitted them.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Formats accepted by WithFormat.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// TimeFormat is the console timestamp layout.
const TimeFormat = "2006-01-02 15:04:05.000Z07:00"

type handlerConfig struct {
	output    io.Writer
	format    string
	level     slog.Level
	addSource bool
	noColor   bool
}

func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		output: os.Stderr,
		format: FormatText,
		level:  slog.LevelInfo,
	}
}

// HandlerOption configures the logger built by New.
type HandlerOption func(*handlerConfig)

// WithLevel sets the minimum level to report.
func WithLevel(level slog.Level) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file/line).
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithFormat selects FormatText or FormatJSON.
func WithFormat(format string) HandlerOption {
	return func(c *handlerConfig) {
		c.format = format
	}
}

// WithNoColor disables ANSI colors in text output.
func WithNoColor(noColor bool) HandlerOption {
	return func(c *handlerConfig) {
		c.noColor = noColor
	}
}

// WithOutput redirects output. The default is stderr.
func WithOutput(w io.Writer) HandlerOption {
	return func(c *handlerConfig) {
		if w != nil {
			c.output = w
		}
	}
}

// New creates a logger with the given options.
func New(opts ...HandlerOption) *slog.Logger {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return slog.New(newHandler(cfg))
}

func newHandler(cfg handlerConfig) slog.Handler {
	if cfg.format == FormatJSON {
		return slog.NewJSONHandler(cfg.output, &slog.HandlerOptions{
			Level:     cfg.level,
			AddSource: cfg.addSource,
		})
	}
	return tint.NewHandler(cfg.output, &tint.Options{
		Level:      cfg.level,
		AddSource:  cfg.addSource,
		TimeFormat: TimeFormat,
		NoColor:    cfg.noColor,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	})
}

// ParseLevel maps a config level name onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// ForSilo returns a logger whose records carry the silo and component.
func ForSilo(logger *slog.Logger, siloID, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("silo", siloID, "component", component)
}
