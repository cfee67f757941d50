// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

var emuLogger = newSessionLogger(os.Stderr)

// newSessionLogger builds the package's JSON logger. Every record is stamped
// with a nanosecond timestamp by the handler, so call sites only supply the
// domain fields.
func newSessionLogger(w io.Writer) *slog.Logger {
	inner := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(stampHandler{inner})
}

// stampHandler adds timestamp_ns to each record at emit time.
type stampHandler struct{ slog.Handler }

func (h stampHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.Int64("timestamp_ns", r.Time.UTC().UnixNano()))
	return h.Handler.Handle(ctx, r)
}

func (h stampHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return stampHandler{h.Handler.WithAttrs(attrs)}
}

func (h stampHandler) WithGroup(name string) slog.Handler {
	return stampHandler{h.Handler.WithGroup(name)}
}

// logEvent emits one structured record, carrying the Env's correlation ID
// when set so log streams from concurrent workflows stay separable.
func logEvent(env Env, message string, fields ...any) {
	if env.CorrelationID != "" {
		fields = append([]any{"correlation_id", env.CorrelationID}, fields...)
	}
	emuLogger.Info(message, fields...)
}

// instanceLogWriter turns the emulator process's raw stdout/stderr stream
// into one structured record per line. Partial lines are buffered until the
// next write completes them; blank lines are dropped.
type instanceLogWriter struct {
	env    Env
	fields []any
	rest   []byte
}

func newInstanceLogWriter(env Env, fields ...any) io.Writer {
	return &instanceLogWriter{env: env, fields: fields}
}

func (w *instanceLogWriter) Write(p []byte) (int, error) {
	w.rest = append(w.rest, p...)
	for {
		i := bytes.IndexByte(w.rest, '\n')
		if i < 0 {
			return len(p), nil
		}
		line := strings.TrimSpace(string(w.rest[:i]))
		w.rest = w.rest[i+1:]
		if line != "" {
			logEvent(w.env, "emulator output", append(w.fields, "line", line)...)
		}
	}
}
