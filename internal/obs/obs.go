package obs

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey string

const RequestIDKey ctxKey = "req_id"

// Setup configures the global zerolog logger. Development gets a console
// writer, everything else JSON on stderr.
func Setup(environment, level string) {
	var out io.Writer = os.Stderr
	if environment == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithRequestID stores id on ctx for Time and Logger.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// Logger returns the global logger tagged with the request id on ctx, if any.
func Logger(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if id := RequestID(ctx); id != "" {
		l = l.With().Str("req_id", id).Logger()
	}
	return &l
}

// Time logs how long an operation took. Use as
//
//	defer obs.Time(ctx, "planner.run_assignment")(&err)
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()
	return func(errp *error) {
		dur := time.Since(start)
		l := Logger(ctx)
		if errp != nil && *errp != nil {
			l.Warn().Str("op", name).Dur("dur", dur).Err(*errp).Msg("operation failed")
			return
		}
		l.Debug().Str("op", name).Dur("dur", dur).Msg("operation done")
	}
}
