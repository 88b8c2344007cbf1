// Package logger provides structured logging for API security probes.
// Every line carries the component that wrote it; probe and finding events
// have fixed field names so a JSON log can be filtered per endpoint.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is a log level.
type Level = zerolog.Level

// Log levels.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	zl zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level Level
	// Pretty writes colored console lines instead of JSON.
	Pretty    bool
	Output    io.Writer
	Component string
}

// DefaultConfig logs info and above to stderr in console form.
func DefaultConfig() Config {
	return Config{
		Level:  InfoLevel,
		Pretty: true,
		Output: os.Stderr,
	}
}

// LevelFor maps the verbose and debug switches to a level. A quiet run
// only shows warnings, which include findings.
func LevelFor(verbose, debug bool) Level {
	switch {
	case debug:
		return DebugLevel
	case verbose:
		return InfoLevel
	default:
		return WarnLevel
	}
}

// New creates a logger.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(out).Level(cfg.Level).With().Timestamp()
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return &Logger{zl: ctx.Logger()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) with(fn func(zerolog.Context) zerolog.Context) *Logger {
	return &Logger{zl: fn(l.zl.With()).Logger()}
}

// WithComponent returns a logger whose lines are tagged with component.
func (l *Logger) WithComponent(component string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("component", component) })
}

// WithField returns a logger with one extra field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

// WithEndpoint scopes a logger to one endpoint.
func (l *Logger) WithEndpoint(method, path string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("method", method).Str("path", path) })
}

func (l *Logger) WithError(err error) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Err(err) })
}

func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Dur("duration", d) })
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }

func (l *Logger) Info(msg string) { l.zl.Info().Msg(msg) }

func (l *Logger) Infof(format string, args ...interface{}) { l.zl.Info().Msgf(format, args...) }

func (l *Logger) Warn(msg string) { l.zl.Warn().Msg(msg) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.zl.Warn().Msgf(format, args...) }

func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

// ProbeEvent logs a single probe round trip at debug level.
func (l *Logger) ProbeEvent(probe, method, url string, statusCode int, duration time.Duration) {
	l.zl.Debug().
		Str("probe", probe).
		Str("method", method).
		Str("url", url).
		Int("status_code", statusCode).
		Dur("duration", duration).
		Msg("Probe sent")
}

// ProbeFailed logs a probe skipped because of a transport error. Testers
// carry on with their next probe, so this stays at debug level.
func (l *Logger) ProbeFailed(probe, url string, err error) {
	l.zl.Debug().
		Err(err).
		Str("probe", probe).
		Str("url", url).
		Msg("Probe failed, skipping")
}

// FindingEvent logs a recorded vulnerability at warn level, so findings
// show up in a quiet run.
func (l *Logger) FindingEvent(category, severity, method, path, parameter, description string) {
	event := l.zl.Warn().
		Str("category", category).
		Str("severity", severity).
		Str("method", method).
		Str("path", path)
	if parameter != "" {
		event = event.Str("parameter", parameter)
	}
	event.Msg(description)
}

// DiscoveryEvent logs a discovered endpoint and the source that found it.
func (l *Logger) DiscoveryEvent(method, path, source string, statusCode int) {
	event := l.zl.Info().
		Str("method", method).
		Str("path", path).
		Str("source", source)
	if statusCode > 0 {
		event = event.Int("status_code", statusCode)
	}
	event.Msg("Discovered endpoint")
}

// ErrorEvent logs a failed session step, such as an OpenAPI import.
func (l *Logger) ErrorEvent(err error, url string, operation string) {
	l.zl.Error().
		Err(err).
		Str("url", url).
		Str("operation", operation).
		Msg("Operation failed")
}

// StatsEvent logs the end-of-run counters.
func (l *Logger) StatsEvent(stats map[string]interface{}) {
	l.zl.Info().Fields(stats).Msg("Scan statistics")
}
