// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/novacriatura/novacriatura/internal/audit"
	"github.com/novacriatura/novacriatura/internal/auth"
)

// DefaultCleanupInterval is how often RunCleanup sweeps expired sessions.
const DefaultCleanupInterval = 15 * time.Minute

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// CookieName defaults to CookieName.
	CookieName string
	// Rolling extends the expiry on every authenticated request.
	Rolling bool
}

// Manager ties the cookie store to user identity.
type Manager struct {
	store   *Store
	repo    Repository
	users   auth.UserRepository
	audit   audit.Recorder
	logger  *slog.Logger
	name    string
	rolling bool
}

// NewManager creates a Manager.
func NewManager(store *Store, repo Repository, users auth.UserRepository, recorder audit.Recorder, logger *slog.Logger, opts ManagerOptions) (*Manager, error) {
	if store == nil {
		return nil, oops.Code("SESSION_MANAGER_INVALID").Errorf("session store is required")
	}
	if repo == nil {
		return nil, oops.Code("SESSION_MANAGER_INVALID").Errorf("session repository is required")
	}
	if users == nil {
		return nil, oops.Code("SESSION_MANAGER_INVALID").Errorf("users repository is required")
	}
	if recorder == nil {
		recorder = audit.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CookieName == "" {
		opts.CookieName = CookieName
	}
	return &Manager{
		store:   store,
		repo:    repo,
		users:   users,
		audit:   recorder,
		logger:  logger,
		name:    opts.CookieName,
		rolling: opts.Rolling,
	}, nil
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.name
}

// Serialize reduces a user to the value kept in the session.
func (m *Manager) Serialize(user *auth.User) string {
	return user.ID.String()
}

// Deserialize resolves a serialized user. A malformed value or a user that
// no longer exists yields (nil, nil); only lookup failures are errors.
func (m *Manager) Deserialize(ctx context.Context, value string) (*auth.User, error) {
	id, err := ulid.Parse(value)
	if err != nil {
		return nil, nil
	}
	user, err := m.users.GetByID(ctx, id)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_DESERIALIZE_FAILED").With("user_id", value).Wrap(err)
	}
	return user, nil
}

// Create starts a fresh session for user. Any session the request already
// carries is deleted first.
func (m *Manager) Create(w http.ResponseWriter, r *http.Request, user *auth.User) error {
	if user == nil {
		return oops.Code("SESSION_CREATE_FAILED").Errorf("user is required")
	}

	previous, err := m.store.New(r, m.name)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("operation", "load previous session").Wrap(err)
	}
	if !previous.IsNew {
		if err := m.store.delete(r.Context(), previous.ID); err != nil {
			return oops.Code("SESSION_CREATE_FAILED").With("operation", "rotate session").Wrap(err)
		}
	}

	sess := m.store.blank(m.name)
	sess.Values[UserKey] = m.Serialize(user)
	if err := m.store.Save(r, w, sess); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return nil
}

// Current returns the user bound to the request's session, or nil when the
// request is unauthenticated. Activity is recorded on the session record;
// with rolling sessions the expiry and cookie are renewed as well.
func (m *Manager) Current(w http.ResponseWriter, r *http.Request) (*auth.User, error) {
	sess, raw, user, err := m.resolve(r)
	if err != nil || sess == nil {
		return nil, err
	}
	if user == nil {
		m.reject(w, r, sess, raw)
		return nil, nil
	}

	m.touch(w, r, sess)
	return user, nil
}

// Peek is Current without side effects: the session record is not touched
// and no cookie is written. Use it before Destroy.
func (m *Manager) Peek(r *http.Request) (*auth.User, error) {
	_, _, user, err := m.resolve(r)
	return user, err
}

// resolve loads the request's session and its user. sess is nil when the
// request carries no valid session; user is nil when the session's user no
// longer exists.
func (m *Manager) resolve(r *http.Request) (sess *sessions.Session, raw string, user *auth.User, err error) {
	sess, err = m.store.Get(r, m.name)
	if err != nil {
		return nil, "", nil, oops.Code("SESSION_LOAD_FAILED").Wrap(err)
	}
	if sess.IsNew {
		return nil, "", nil, nil
	}

	raw, _ = sess.Values[UserKey].(string)
	user, err = m.Deserialize(r.Context(), raw)
	if err != nil {
		return nil, "", nil, err
	}
	return sess, raw, user, nil
}

// Destroy deletes the request's session and expires its cookie. Calling it
// without a session is not an error.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	sess, err := m.store.Get(r, m.name)
	if err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").Wrap(err)
	}
	sess.Options.MaxAge = -1
	if err := m.store.Save(r, w, sess); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").With("session_id", sess.ID).Wrap(err)
	}
	return nil
}

// reject drops a session whose user no longer exists.
func (m *Manager) reject(w http.ResponseWriter, r *http.Request, sess *sessions.Session, raw string) {
	m.audit.Record(r.Context(), audit.Event{
		Kind:   audit.KindSessionRejected,
		UserID: raw,
		Reason: "user not found",
	})
	sess.Options.MaxAge = -1
	if err := m.store.Save(r, w, sess); err != nil {
		m.logger.WarnContext(r.Context(), "failed to drop orphaned session",
			"session_id", sess.ID, "error", err)
	}
	sess.IsNew = true
}

func (m *Manager) touch(w http.ResponseWriter, r *http.Request, sess *sessions.Session) {
	record := recordOf(sess)
	if record == nil {
		return
	}

	now := m.store.now().UTC()
	expiresAt := record.ExpiresAt
	if m.rolling {
		expiresAt = now.Add(m.store.ttl)
	}
	if err := m.repo.Touch(r.Context(), record.ID, now, expiresAt); err != nil {
		m.logger.WarnContext(r.Context(), "failed to touch session",
			"session_id", record.ID.String(), "error", err)
		return
	}
	record.LastSeenAt = now
	record.ExpiresAt = expiresAt

	if m.rolling && w != nil {
		if err := m.store.Save(r, w, sess); err != nil {
			m.logger.WarnContext(r.Context(), "failed to renew session cookie",
				"session_id", record.ID.String(), "error", err)
		}
	}
}

// RunCleanup deletes expired sessions every interval until ctx is done.
func (m *Manager) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	n, err := m.repo.DeleteExpired(ctx, m.store.now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			m.logger.WarnContext(ctx, "session cleanup failed", "error", err)
		}
		return
	}
	if n > 0 {
		m.logger.InfoContext(ctx, "expired sessions removed", "count", n)
	}
}

// clientInfo returns the request metadata recorded with new sessions.
func clientInfo(r *http.Request) audit.RequestInfo {
	if info, ok := audit.RequestInfoFrom(r.Context()); ok {
		return info
	}
	return audit.RequestInfo{RemoteAddr: r.RemoteAddr, UserAgent: r.UserAgent()}
}
