// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package auth_test

import (
	"context"
	"strings"
	"sync"

	"github.com/novacriatura/novacriatura/internal/audit"
	"github.com/novacriatura/novacriatura/internal/auth"
)

// plainHasher is a fast, insecure SecretHasher for tests that do not
// exercise scrypt itself.
type plainHasher struct{}

func (plainHasher) Hash(_ context.Context, secret string) (string, error) {
	if secret == "" {
		return "", auth.ErrEmptySecret
	}
	return "plain." + secret, nil
}

func (plainHasher) Verify(_ context.Context, supplied, stored string) bool {
	s, ok := strings.CutPrefix(stored, "plain.")
	return ok && s == supplied
}

// recorder captures audit events.
type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Record(_ context.Context, event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) kinds() []audit.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return audit.Event{}
	}
	return r.events[len(r.events)-1]
}
