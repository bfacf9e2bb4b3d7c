// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package audit

import (
	"context"
	"time"

	"github.com/novacriatura/novacriatura/internal/logging"
)

// Kind identifies the type of audited event.
type Kind string

// Audited event kinds.
const (
	KindLoginSucceeded         Kind = "login_succeeded"
	KindLoginFailed            Kind = "login_failed"
	KindRegisterSucceeded      Kind = "register_succeeded"
	KindRegisterRejected       Kind = "register_rejected"
	KindLogout                 Kind = "logout"
	KindProfileUpdated         Kind = "profile_updated"
	KindPrivilegedBootstrapped Kind = "privileged_bootstrapped"
	KindSessionRejected        Kind = "session_rejected"
)

// Sensitive reports whether events of this kind must be written
// synchronously.
func (k Kind) Sensitive() bool {
	switch k {
	case KindLoginFailed, KindRegisterRejected, KindSessionRejected, KindPrivilegedBootstrapped:
		return true
	default:
		return false
	}
}

// Event is a single audited occurrence.
type Event struct {
	Kind       Kind           `json:"kind"`
	Username   string         `json:"username,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	RemoteAddr string         `json:"remote_addr,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Recorder accepts audit events. Implementations must not block callers on
// slow backends for non-sensitive kinds.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

type discard struct{}

func (discard) Record(context.Context, Event) {}

// Discard is a Recorder that drops every event.
var Discard Recorder = discard{}

// RequestInfo carries HTTP request metadata attached to events recorded
// while serving that request.
type RequestInfo struct {
	RemoteAddr string
	UserAgent  string
	RequestID  string
}

type requestInfoKey struct{}

// WithRequestInfo returns a context carrying info.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom returns the request metadata stored in ctx, if any.
func RequestInfoFrom(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}

// enrich fills the timestamp and request metadata and redacts
// secret-bearing attributes. The input map is never mutated.
func enrich(ctx context.Context, event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if info, ok := RequestInfoFrom(ctx); ok {
		if event.RemoteAddr == "" {
			event.RemoteAddr = info.RemoteAddr
		}
		if event.UserAgent == "" {
			event.UserAgent = info.UserAgent
		}
		if event.RequestID == "" {
			event.RequestID = info.RequestID
		}
	}
	if len(event.Attributes) > 0 {
		attrs := make(map[string]any, len(event.Attributes))
		for k, v := range event.Attributes {
			if logging.SensitiveKey(k) {
				v = logging.Redacted
			}
			attrs[k] = v
		}
		event.Attributes = attrs
	}
	return event
}
