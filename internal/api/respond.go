// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/samber/oops"

	"github.com/novacriatura/novacriatura/internal/auth"
	"github.com/novacriatura/novacriatura/pkg/errutil"
)

// CodeBadRequest marks malformed request bodies.
const CodeBadRequest = "API_BAD_REQUEST"

// Messages returned to clients.
const (
	msgInternal       = "internal server error"
	msgBadRequest     = "invalid request body"
	msgGenericFailure = "invalid username or secret"
	msgOrigin         = "origin not allowed"
	msgNotFound       = "not found"
	msgMethod         = "method not allowed"
)

type messageBody struct {
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.DebugContext(r.Context(), "failed to write response", "error", err)
	}
}

func (h *Handler) writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, messageBody{Message: msg})
}

func (h *Handler) writeText(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, msg); err != nil {
		h.logger.DebugContext(r.Context(), "failed to write response", "error", err)
	}
}

// fail maps err to a response. Validation failures become 400 with the
// error text, as plain text when plain is set; everything else is logged
// and reported as a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, plain bool) {
	code := errutil.Code(err)
	if code == CodeBadRequest || auth.IsValidationCode(code) {
		msg := clientMessage(err)
		if plain {
			h.writeText(w, r, http.StatusBadRequest, msg)
		} else {
			h.writeMessage(w, r, http.StatusBadRequest, msg)
		}
		return
	}

	errutil.LogErrorContext(r.Context(), h.logger, "request failed", err)
	h.writeMessage(w, r, http.StatusInternalServerError, msgInternal)
}

// clientMessage returns the user-facing text of a validation error. Bad
// request errors may wrap decoder detail, which is not echoed back.
func clientMessage(err error) string {
	if errutil.Code(err) == CodeBadRequest {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "request body too large"
		}
		return msgBadRequest
	}
	return err.Error()
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return oops.Code(CodeBadRequest).With("limit", maxErr.Limit).Wrap(err)
		}
		return oops.Code(CodeBadRequest).Wrapf(err, msgBadRequest)
	}
	if dec.More() {
		return oops.Code(CodeBadRequest).Errorf(msgBadRequest)
	}
	return nil
}
