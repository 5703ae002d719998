// Package logger configures zerolog and carries request and room fields
// through contexts.
package logger

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

type contextKey struct{}

const (
	milliTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	callerWidth     = 30
	maxBodyLog      = 1000
)

// Options selects the level and sinks of the global logger.
type Options struct {
	Level string
	File  string
	JSON  bool
}

// Init configures the global logger. The returned func closes the log file,
// if one was opened.
func Init(opts Options) func() {
	zerolog.TimeFieldFormat = milliTimeFormat
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		path := fmt.Sprintf("%s:%d", filepath.Base(file), line)
		if len(path) >= callerWidth {
			return path[len(path)-callerWidth:]
		}
		return path + strings.Repeat(" ", callerWidth-len(path))
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if !opts.JSON {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: milliTimeFormat}
	}

	closeFn := func() {}
	if opts.File != "" {
		f, ferr := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if ferr == nil {
			output = io.MultiWriter(output, f)
			closeFn = func() { f.Close() }
		}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Caller().Logger()
	log.Info().Str("level", level.String()).Bool("json", opts.JSON).Msg("Logger initialized")
	return closeFn
}

// NewRequestID returns a short random id for correlating a request's logs.
func NewRequestID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:6])
}

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// RequestIDFromContext extracts the request ID from context, or empty string.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// ForRequest returns the global logger tagged with the request id and trace
// id found in ctx.
func ForRequest(ctx context.Context) zerolog.Logger {
	lc := log.Logger.With()
	if id := RequestIDFromContext(ctx); id != "" {
		lc = lc.Str("requestId", id)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		lc = lc.Str("traceId", sc.TraceID().String())
	}
	return lc.Logger()
}

// ForRoom returns a request logger tagged with a room id.
func ForRoom(ctx context.Context, roomID string) zerolog.Logger {
	return ForRequest(ctx).With().Str("roomId", roomID).Logger()
}

// ForTurn returns a room logger tagged with the turn number.
func ForTurn(ctx context.Context, roomID string, turn int) zerolog.Logger {
	return ForRoom(ctx, roomID).With().Int("turn", turn).Logger()
}

// DebugBody logs a request or response body at debug level, truncated.
func DebugBody(l zerolog.Logger, field string, body []byte) {
	if len(body) == 0 || l.GetLevel() > zerolog.DebugLevel || zerolog.GlobalLevel() > zerolog.DebugLevel {
		return
	}
	ev := l.Debug()
	if len(body) > maxBodyLog {
		body = body[:maxBodyLog]
		ev = ev.Bool("truncated", true)
	}
	ev.Str(field, string(body)).Msg("Body")
}
