// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package api

import (
	"errors"
	"net/http"

	"github.com/novacriatura/novacriatura/internal/audit"
	"github.com/novacriatura/novacriatura/internal/auth"
	"github.com/novacriatura/novacriatura/pkg/errutil"
)

// Outcome labels for the auth counters.
const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

type registerRequest struct {
	Username      string `json:"username"`
	Secret        string `json:"secret"`
	ConversionAge *int   `json:"conversionAge"`
	BaptismDate   string `json:"baptismDate"`
	UseTTS        bool   `json:"useTTS"`
}

type loginRequest struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		h.metrics.Registration(outcomeRejected)
		h.fail(w, r, err, true)
		return
	}

	user, err := h.accounts.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Secret:   req.Secret,
		Profile: auth.Profile{
			ConversionAge: req.ConversionAge,
			BaptismDate:   req.BaptismDate,
			UseTTS:        req.UseTTS,
		},
	})
	if err != nil {
		if auth.IsValidationCode(errutil.Code(err)) {
			h.metrics.Registration(outcomeRejected)
		} else {
			h.metrics.Registration(outcomeError)
		}
		h.fail(w, r, err, true)
		return
	}
	h.metrics.Registration(outcomeSuccess)

	// The account exists from here on; a session failure is reported but
	// the client can still log in.
	if err := h.sessions.Create(w, r, user); err != nil {
		h.fail(w, r, err, false)
		return
	}
	h.metrics.Session("created")

	h.writeJSON(w, r, http.StatusCreated, user)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err, false)
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Username, req.Secret)
	if err != nil {
		h.metrics.Login(outcomeError)
		h.fail(w, r, err, false)
		return
	}
	if !res.OK() {
		h.metrics.Login(string(res.Reason))
		msg := res.Reason.Message()
		if h.opts.GenericFailures {
			msg = msgGenericFailure
		}
		h.writeMessage(w, r, http.StatusUnauthorized, msg)
		return
	}
	h.metrics.Login(outcomeSuccess)

	if err := h.sessions.Create(w, r, res.User); err != nil {
		h.fail(w, r, err, false)
		return
	}
	h.metrics.Session("created")

	h.writeJSON(w, r, http.StatusOK, res.User)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessions.Peek(r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to resolve session before logout", "error", err)
	}

	if err := h.sessions.Destroy(w, r); err != nil {
		h.fail(w, r, err, false)
		return
	}
	h.metrics.Session("destroyed")

	if user != nil {
		h.audit.Record(r.Context(), audit.Event{
			Kind:     audit.KindLogout,
			Username: user.Username,
			UserID:   user.ID.String(),
		})
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessions.Current(w, r)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	if user == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	h.writeJSON(w, r, http.StatusOK, user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessions.Current(w, r)
	if err != nil {
		h.fail(w, r, err, false)
		return
	}
	if user == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var update auth.ProfileUpdate
	if err := decode(r, &update); err != nil {
		h.fail(w, r, err, false)
		return
	}

	updated, err := h.accounts.UpdateProfile(r.Context(), user.ID, update)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h.fail(w, r, err, false)
		return
	}
	h.writeJSON(w, r, http.StatusOK, updated)
}
