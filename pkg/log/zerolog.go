package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ZerologProvider serves loggers backed by a shared zerolog.Logger.
type ZerologProvider struct {
	mu   sync.RWMutex
	base zerolog.Logger
}

// ProviderOption configures a ZerologProvider.
type ProviderOption func(*providerConfig)

type providerConfig struct {
	out     io.Writer
	console bool
	fields  []any
}

// WithWriter sets the destination. Defaults to os.Stderr.
func WithWriter(w io.Writer) ProviderOption {
	return func(c *providerConfig) { c.out = w }
}

// WithConsole switches to zerolog's human readable console format.
func WithConsole(console bool) ProviderOption {
	return func(c *providerConfig) { c.console = console }
}

// WithFields attaches key/value pairs to every logger of the provider.
func WithFields(fields ...any) ProviderOption {
	return func(c *providerConfig) { c.fields = append(c.fields, fields...) }
}

// NewZerologProvider creates a provider at the given slog level.
func NewZerologProvider(level slog.Level, opts ...ProviderOption) *ZerologProvider {
	cfg := &providerConfig{out: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}

	out := cfg.out
	if cfg.console {
		out = zerolog.ConsoleWriter{Out: cfg.out, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if len(cfg.fields) > 0 {
		ctx = ctx.Fields(cfg.fields)
	}
	return &ZerologProvider{base: ctx.Logger().Level(toZerologLevel(level))}
}

// Zerolog returns the underlying zerolog.Logger.
func (p *ZerologProvider) Zerolog() zerolog.Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.base
}

func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{zl: p.Zerolog()}
}

func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	zl := p.Zerolog().With().Str(ComponentKey, name).Logger()
	return &zerologLogger{zl: zl}
}

func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.base.Level(toZerologLevel(level))
}

type zerologLogger struct {
	zl zerolog.Logger
}

func (z *zerologLogger) Debug(msg string, fields ...any) { emit(z.zl.Debug(), msg, fields) }
func (z *zerologLogger) Info(msg string, fields ...any)  { emit(z.zl.Info(), msg, fields) }
func (z *zerologLogger) Warn(msg string, fields ...any)  { emit(z.zl.Warn(), msg, fields) }
func (z *zerologLogger) Error(msg string, fields ...any) { emit(z.zl.Error(), msg, fields) }

func (z *zerologLogger) With(fields ...any) Logger {
	return &zerologLogger{zl: z.zl.With().Fields(fields).Logger()}
}

func (z *zerologLogger) Enabled(_ context.Context, level Level) bool {
	lvl := toZerologLevel(level)
	return lvl >= z.zl.GetLevel() && lvl >= zerolog.GlobalLevel()
}

func emit(e *zerolog.Event, msg string, fields []any) {
	if e == nil {
		return
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			e = e.Err(err)
			if st := extractStacktrace(err); st != "" {
				e = e.Str(StacktraceKey, st)
			}
			fields = fields[1:]
		}
	}
	if len(fields) > 1 {
		e = e.Fields(fields)
	}
	e.Msg(msg)
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

var (
	globalMu       sync.RWMutex
	globalProvider LoggerProvider = NewZerologProvider(slog.LevelInfo, WithWriter(io.Discard))
)

// SetProvider replaces the process-wide provider. Passing nil is an error.
func SetProvider(p LoggerProvider) error {
	if p == nil {
		return errors.New("log: nil provider")
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	globalProvider = p
	return nil
}

// GetLogger returns the default logger of the process-wide provider.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalProvider.GetLogger()
}

// GetLoggerWithName returns a named logger of the process-wide provider.
func GetLoggerWithName(name string) Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalProvider.GetLoggerWithName(name)
}
