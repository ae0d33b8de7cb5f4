package obs

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/adred-codev/threadbase/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerConfig selects the process logger's level and output encoding.
type LoggerConfig struct {
	Level  config.LogLevel
	Format config.LogFormat
}

// NewLogger builds a zerolog.Logger tagged with the service name, timestamp,
// and caller. Pretty format is console-friendly for local development; JSON
// is the default for log aggregation.
func NewLogger(cfg LoggerConfig) zerolog.Logger {
	var output io.Writer = os.Stdout

	var level zerolog.Level
	switch cfg.Level {
	case config.LogLevelDebug:
		level = zerolog.DebugLevel
	case config.LogLevelInfo:
		level = zerolog.InfoLevel
	case config.LogLevelWarn:
		level = zerolog.WarnLevel
	case config.LogLevelError:
		level = zerolog.ErrorLevel
	case config.LogLevelFatal:
		level = zerolog.FatalLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == config.LogFormatPretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).With().Timestamp().Caller().Str("service", "threadbase").Logger()
}

// InitGlobalLogger sets the package-level zerolog.Logger, for code paths
// that don't carry an injected logger.
func InitGlobalLogger(cfg LoggerConfig) {
	log.Logger = NewLogger(cfg)
}

// LogError logs err with msg and arbitrary context fields.
func LogError(logger zerolog.Logger, err error, msg string, fields map[string]any) {
	event := logger.Error().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// RecoverPanic, deferred directly in a goroutine, logs a panic instead of
// letting it crash the process. It recovers nothing when called from inside
// another deferred function, since recover only takes effect in the deferred
// call itself.
func RecoverPanic(logger zerolog.Logger, goroutineName string, fields map[string]any) {
	if r := recover(); r != nil {
		event := logger.Error().
			Str("goroutine", goroutineName).
			Interface("panic_value", r).
			Str("stack", string(debug.Stack()))
		for k, v := range fields {
			event = event.Interface(k, v)
		}
		event.Msg("recovered panic")
	}
}
