// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/droidbay/emusess/internal/emu")

// startSpan opens a span for one lifecycle operation, parented on the Env's
// context and carrying its correlation ID so traces join up with the JSON
// log stream.
func startSpan(env Env, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx := env.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if env.CorrelationID != "" {
		attrs = append(attrs, attribute.String("correlation_id", env.CorrelationID))
	}
	return tracer.Start(ctx, op, trace.WithAttributes(attrs...))
}

// recordSpanError marks the span failed and attaches the error. Safe on nil.
func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
