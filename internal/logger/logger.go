// Package logger builds the zerolog root logger and carries per-request
// fields through context.Context.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	SampleN   int
	Component string
	Version   string
}

type ctxKey string

// context fields, in the order they are written
var ctxFields = []ctxKey{"request_id", "component", "layer", "report_cache"}

func with(ctx context.Context, k ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

// WithRequestID tags the context with reqID, generating one when empty.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return with(ctx, "request_id", reqID)
}

func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey("request_id")).(string)
	return s
}

func WithComponent(ctx context.Context, component string) context.Context {
	return with(ctx, "component", component)
}

// WithLayer names the reference layer a record is about.
func WithLayer(ctx context.Context, layerID string) context.Context {
	return with(ctx, "layer", layerID)
}

// WithCacheOutcome records the report cache outcome (hit, miss).
func WithCacheOutcome(ctx context.Context, outcome string) context.Context {
	return with(ctx, "report_cache", outcome)
}

// NewID returns 16 random hex characters.
func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Build configures zerolog globally and returns the root logger. An unknown
// level falls back to info.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"
	zerolog.DurationFieldUnit = time.Millisecond

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	base := zerolog.New(out)
	if cfg.SampleN > 1 {
		base = base.Sample(&zerolog.BasicSampler{N: uint32(min(uint64(cfg.SampleN), math.MaxUint32))})
	}

	zc := base.With().Timestamp()
	if cfg.Component != "" {
		zc = zc.Str("component", cfg.Component)
	}
	if cfg.Version != "" {
		zc = zc.Str("version", cfg.Version)
	}
	return zc.Logger()
}

// FromContext returns a child of parent carrying the context fields. A nil
// parent discards output.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	base := zerolog.Nop()
	if parent != nil {
		base = *parent
	}
	w := base.With()
	for _, k := range ctxFields {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			w = w.Str(string(k), s)
		}
	}
	l := w.Logger()
	return &l
}
