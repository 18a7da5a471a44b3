package redact

import (
	"context"
	"log/slog"
)

// Handler wraps a slog.Handler and scrubs sensitive values from the message
// and every string-valued attribute before delegating. Memory content flows
// through capture logging, so the log pipeline gets the same detector table
// as the store path.
type Handler struct {
	inner    slog.Handler
	redactor *Redactor
}

// Compile-time check.
var _ slog.Handler = (*Handler)(nil)

// NewHandler creates a Handler wrapping inner.
func NewHandler(inner slog.Handler, redactor *Redactor) *Handler {
	return &Handler{inner: inner, redactor: redactor}
}

// Enabled delegates to the inner handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle scrubs the record's message and attributes, then delegates.
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	scrubbed := slog.NewRecord(rec.Time, rec.Level, h.redactor.Scrub(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		scrubbed.AddAttrs(h.scrubAttr(a))
		return true
	})
	return h.inner.Handle(ctx, scrubbed)
}

// WithAttrs returns a new handler with pre-scrubbed attributes.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = h.scrubAttr(a)
	}
	return &Handler{
		inner:    h.inner.WithAttrs(scrubbed),
		redactor: h.redactor,
	}
}

// WithGroup returns a new handler with the given group name.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		inner:    h.inner.WithGroup(name),
		redactor: h.redactor,
	}
}

// scrubAttr recursively scrubs string values in an attribute. Resolve runs
// first so LogValuer, error, and Stringer types land as their final
// representation before scrubbing.
func (h *Handler) scrubAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(h.redactor.Scrub(a.Value.String()))
	case slog.KindGroup:
		attrs := a.Value.Group()
		scrubbed := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			scrubbed[i] = h.scrubAttr(ga)
		}
		a.Value = slog.GroupValue(scrubbed...)
	case slog.KindAny:
		resolved := a.Value.String()
		if scrubbed := h.redactor.Scrub(resolved); scrubbed != resolved {
			a.Value = slog.StringValue(scrubbed)
		}
	}
	return a
}
