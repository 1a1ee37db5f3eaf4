// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package logging provides structured logging with OpenTelemetry trace context
// and redaction of credential attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Redacted replaces the value of any credential-bearing attribute.
const Redacted = "[REDACTED]"

// sensitiveKeys are attribute keys whose values are never written.
// Keys ending in "_token" or "_secret" are covered as well.
var sensitiveKeys = map[string]struct{}{
	"secret":        {},
	"password":      {},
	"token":         {},
	"secret_digest": {},
	"authorization": {},
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	if _, ok := sensitiveKeys[key]; ok {
		return true
	}
	return strings.HasSuffix(key, "_token") || strings.HasSuffix(key, "_secret")
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if isSensitive(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	return a
}

// traceHandler stamps service, version and the span of the record's context.
type traceHandler struct {
	handler slog.Handler
	service string
	version string
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{handler: h.handler.WithAttrs(attrs), service: h.service, version: h.version}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{handler: h.handler.WithGroup(name), service: h.service, version: h.version}
}

// Options configures New.
type Options struct {
	Service string
	Version string
	// Format is "json" or "text". Anything else means json.
	Format string
	Level  slog.Leveler
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// New creates a configured slog.Logger.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level, ReplaceAttr: redact}

	var base slog.Handler
	if opts.Format == "text" {
		base = slog.NewTextHandler(w, handlerOpts)
	} else {
		base = slog.NewJSONHandler(w, handlerOpts)
	}

	return slog.New(&traceHandler{handler: base, service: opts.Service, version: opts.Version})
}

// Setup creates a debug-level logger for service and version.
// If w is nil, writes to os.Stderr.
func Setup(service, version, format string, w io.Writer) *slog.Logger {
	return New(Options{Service: service, Version: version, Format: format, Level: slog.LevelDebug, Writer: w})
}

// SetDefault installs an info-level logger as the slog default and returns it.
func SetDefault(service, version, format string) *slog.Logger {
	logger := New(Options{Service: service, Version: version, Format: format})
	slog.SetDefault(logger)
	return logger
}
