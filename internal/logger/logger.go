package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// Log is the global logger instance
var Log *slog.Logger

// Init sets up the default logger.
// Development: text on stdout at Debug level.
// Production: JSON on stdout at Info level.
// With a Sentry DSN, error records are also sent to Sentry.
func Init(isDev bool, sentryDSN, environment string) {
	level := slog.LevelInfo
	if isDev {
		level = slog.LevelDebug
	}

	var handlers []slog.Handler
	if isDev {
		handlers = append(handlers, slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	} else {
		handlers = append(handlers, slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}

	var sentryErr error
	if sentryDSN != "" {
		sentryErr = sentry.Init(sentry.ClientOptions{
			Dsn:         sentryDSN,
			Environment: environment,
		})
		if sentryErr == nil {
			handlers = append(handlers, slogsentry.Option{
				Level: slog.LevelError,
			}.NewSentryHandler())
		}
	}

	var handler slog.Handler
	if len(handlers) > 1 {
		handler = slogmulti.Fanout(handlers...)
	} else {
		handler = handlers[0]
	}

	Log = slog.New(handler)
	slog.SetDefault(Log)

	if sentryErr != nil {
		slog.Warn("sentry disabled", "error", sentryErr)
	}
}

// Flush waits for buffered Sentry events. Call it before exit.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}
