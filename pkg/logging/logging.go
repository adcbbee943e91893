// Package logging provides the structured, levelled logger the scheduler
// threads through every component, with child loggers carrying merged
// fields the way the engine needs for per-run and per-trigger context.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Field is a single structured key-value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

// F is a short constructor for Field, used at call sites.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Logger is the levelled, child-context logging contract the rest of the
// scheduler depends on (spec §4.2). The concrete implementation wraps
// zerolog.Logger.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	Child(fields ...Field) Logger
	SetLevel(level Level)
}

// Level mirrors zerolog's level scale so callers don't import zerolog
// directly.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelDisabled
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

type zlogger struct {
	l *zerolog.Logger
}

// New creates a Logger writing to w (os.Stdout in production, a buffer in
// tests that want to assert on emitted lines).
func New(w io.Writer, level Level) Logger {
	if w == nil {
		w = os.Stdout
	}
	base := zerolog.New(w).With().Timestamp().Logger().Level(level.zerolog())
	return &zlogger{l: &base}
}

// Default returns a Logger writing to stdout at info level, the
// teacher-style zero-config default.
func Default() Logger {
	return New(os.Stdout, LevelInfo)
}

func withFields(ctx zerolog.Context, fields []Field) zerolog.Context {
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return ctx
}

func (z *zlogger) Debug(msg string, fields ...Field) {
	ev := z.l.Debug()
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

func (z *zlogger) Info(msg string, fields ...Field) {
	ev := z.l.Info()
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

func (z *zlogger) Warn(msg string, fields ...Field) {
	ev := z.l.Warn()
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

func (z *zlogger) Error(msg string, err error, fields ...Field) {
	ev := z.l.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

func (z *zlogger) Child(fields ...Field) Logger {
	ctx := z.l.With()
	ctx = withFields(ctx, fields)
	child := ctx.Logger()
	return &zlogger{l: &child}
}

func (z *zlogger) SetLevel(level Level) {
	newL := z.l.Level(level.zerolog())
	z.l = &newL
}
