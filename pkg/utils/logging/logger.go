package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/goerr/v2"
)

type ctxLoggerKey struct{}

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(New("info", os.Stderr))
}

// Format selects the handler used for log output
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

func (f Format) Validate() error {
	switch f {
	case FormatConsole, FormatJSON:
		return nil
	default:
		return goerr.New("invalid log format", goerr.V("format", f))
	}
}

type settings struct {
	format Format
	source bool
}

type Option func(*settings)

// WithFormat switches between colored console output and JSON lines
func WithFormat(format Format) Option {
	return func(s *settings) {
		s.format = format
	}
}

func WithSource(source bool) Option {
	return func(s *settings) {
		s.source = source
	}
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New builds a logger writing to w. level is one of debug, info, warn,
// warning or error in any case; anything else falls back to info.
func New(level string, w io.Writer, opts ...Option) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	s := settings{format: FormatConsole}
	for _, opt := range opts {
		opt(&s)
	}

	lv, known := levels[strings.ToLower(level)]
	if !known {
		lv = slog.LevelInfo
	}

	var handler slog.Handler
	switch s.format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     lv,
			AddSource: s.source,
		})
	default:
		handler = clog.New(
			clog.WithWriter(w),
			clog.WithLevel(lv),
			clog.WithTimeFmt("15:04:05"),
			clog.WithSource(s.source),
			clog.WithAttrHook(clog.GoerrHook),
		)
	}

	logger := slog.New(handler)
	if !known {
		logger.Warn("unknown log level, using info", "level", level)
	}
	return logger
}

func Default() *slog.Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the logger returned by Default and From
func SetDefault(logger *slog.Logger) {
	defaultLogger.Store(logger)
}

// With attaches logger to ctx
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, logger)
}

// From returns the logger attached to ctx, or the default one
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxLoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return Default()
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
