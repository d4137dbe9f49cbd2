// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package run

import (
	"context"
	"log/slog"
)

// EventHandler is an slog.Handler that turns log records into EventLog
// events, so a run's log lines travel on the same stream as its progress.
type EventHandler struct {
	emit   func(Event)
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

// NewEventHandler returns a handler that passes records at or above level
// to emit.
func NewEventHandler(emit func(Event), level slog.Leveler) *EventHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &EventHandler{emit: emit, level: level}
}

// Enabled reports whether the handler handles records at the given level.
func (h *EventHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle emits the record as an EventLog.
func (h *EventHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.qualify(a))
		return true
	})
	h.emit(Event{
		Kind:    EventLog,
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	})
	return nil
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *EventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, h.qualify(a))
	}
	return &next
}

// WithGroup returns a handler that prefixes later attribute keys with name.
func (h *EventHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *EventHandler) qualify(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if h.prefix != "" {
		a.Key = h.prefix + a.Key
	}
	return a
}
