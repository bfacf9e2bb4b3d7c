// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novacriatura/novacriatura/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("TEST_ERROR").
		With("key", "value").
		Errorf("something failed")

	errutil.LogError(logger, "operation failed", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "operation failed", logEntry["msg"])
	assert.Equal(t, "TEST_ERROR", logEntry["code"])
	assert.Contains(t, logEntry["error"], "something failed")

	errCtx, ok := logEntry["context"].(map[string]any)
	require.True(t, ok, "context should be logged")
	assert.Equal(t, "value", errCtx["key"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
	assert.NotContains(t, logEntry, "code")
}

func TestLogErrorContext_PassesContext(t *testing.T) {
	type key struct{}
	var seen any
	handler := &ctxCapture{Handler: slog.NewJSONHandler(&bytes.Buffer{}, nil), capture: func(ctx context.Context) {
		seen = ctx.Value(key{})
	}}

	ctx := context.WithValue(context.Background(), key{}, "req-1")
	errutil.LogErrorContext(ctx, slog.New(handler), "failed", errors.New("boom"))

	assert.Equal(t, "req-1", seen)
}

type ctxCapture struct {
	slog.Handler
	capture func(context.Context)
}

func (h *ctxCapture) Handle(ctx context.Context, r slog.Record) error {
	h.capture(ctx)
	return h.Handler.Handle(ctx, r)
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"oops with code", oops.Code("AUTH_EMPTY_SECRET").Errorf("empty"), "AUTH_EMPTY_SECRET"},
		{"oops without code", oops.Errorf("plain"), ""},
		{"standard error", errors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errutil.Code(tt.err))
		})
	}
}
