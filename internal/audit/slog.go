// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package audit

import (
	"context"
	"log/slog"
)

// SlogWriter writes audit events as structured log records.
type SlogWriter struct {
	logger *slog.Logger
}

// NewSlogWriter creates a SlogWriter. A nil logger uses slog.Default().
func NewSlogWriter(logger *slog.Logger) *SlogWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogWriter{logger: logger.With("component", "audit")}
}

// WriteSync logs the event at warn level for sensitive kinds, info otherwise.
func (w *SlogWriter) WriteSync(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	if event.Kind.Sensitive() {
		level = slog.LevelWarn
	}
	w.logger.LogAttrs(ctx, level, "audit event", attrs(event)...)
	return nil
}

// WriteAsync logs the event without a request context.
func (w *SlogWriter) WriteAsync(event Event) error {
	return w.WriteSync(context.Background(), event)
}

// Close is a no-op.
func (w *SlogWriter) Close() error {
	return nil
}

func attrs(event Event) []slog.Attr {
	out := []slog.Attr{
		slog.String("kind", string(event.Kind)),
		slog.Time("event_time", event.Timestamp),
	}
	if event.Username != "" {
		out = append(out, slog.String("username", event.Username))
	}
	if event.UserID != "" {
		out = append(out, slog.String("user_id", event.UserID))
	}
	if event.Reason != "" {
		out = append(out, slog.String("reason", event.Reason))
	}
	if event.RemoteAddr != "" {
		out = append(out, slog.String("remote_addr", event.RemoteAddr))
	}
	if event.UserAgent != "" {
		out = append(out, slog.String("user_agent", event.UserAgent))
	}
	if event.RequestID != "" {
		out = append(out, slog.String("request_id", event.RequestID))
	}
	if len(event.Attributes) > 0 {
		group := make([]any, 0, len(event.Attributes)*2)
		for k, v := range event.Attributes {
			group = append(group, k, v)
		}
		out = append(out, slog.Group("attributes", group...))
	}
	return out
}
