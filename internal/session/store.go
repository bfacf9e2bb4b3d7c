// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"golang.org/x/crypto/hkdf"
)

// CookieName is the default session cookie name.
const CookieName = "novacriatura.sid"

const (
	hashKeyInfo  = "novacriatura session hmac"
	blockKeyInfo = "novacriatura session aes"
	keyLen       = 32
)

// Keys under which the Store keeps its bookkeeping in sessions.Session.Values.
type (
	tokenKey  struct{}
	recordKey struct{}
)

// UserKey is the Values key holding the serialized user.
const UserKey = "user"

// StoreOptions configures a Store.
type StoreOptions struct {
	// Secret is the current session secret. Required.
	Secret string
	// PreviousSecrets still decode cookies but never encode new ones.
	PreviousSecrets []string
	TTL             time.Duration
	Secure          bool
	Path            string
	Domain          string
	SameSite        http.SameSite
}

// Store implements sessions.Store over a Repository. The cookie carries an
// encrypted, signed random token; the record is looked up by token hash.
type Store struct {
	repo    Repository
	codecs  []securecookie.Codec
	options sessions.Options
	ttl     time.Duration
	now     func() time.Time
}

// Compile-time interface check.
var _ sessions.Store = (*Store)(nil)

// NewStore creates a Store. Cookie keys are derived from each secret with
// HKDF-SHA256.
func NewStore(repo Repository, opts StoreOptions) (*Store, error) {
	if repo == nil {
		return nil, oops.Code("SESSION_STORE_INVALID").Errorf("session repository is required")
	}
	if opts.Secret == "" {
		return nil, oops.Code("SESSION_STORE_INVALID").Errorf("session secret is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}

	secrets := append([]string{opts.Secret}, opts.PreviousSecrets...)
	codecs := make([]securecookie.Codec, 0, len(secrets))
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		hashKey, err := deriveKey(secret, hashKeyInfo)
		if err != nil {
			return nil, err
		}
		blockKey, err := deriveKey(secret, blockKeyInfo)
		if err != nil {
			return nil, err
		}
		codec := securecookie.New(hashKey, blockKey)
		codec.MaxAge(int(opts.TTL.Seconds()))
		codecs = append(codecs, codec)
	}

	return &Store{
		repo:   repo,
		codecs: codecs,
		options: sessions.Options{
			Path:     opts.Path,
			Domain:   opts.Domain,
			MaxAge:   int(opts.TTL.Seconds()),
			Secure:   opts.Secure,
			HttpOnly: true,
			SameSite: opts.SameSite,
		},
		ttl: opts.TTL,
		now: time.Now,
	}, nil
}

func deriveKey(secret, info string) ([]byte, error) {
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, oops.Code("SESSION_STORE_INVALID").With("operation", "derive cookie key").Wrap(err)
	}
	return key, nil
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get returns the session for name, cached per request.
func (s *Store) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name) //nolint:wrapcheck // registry returns our own errors
}

// New loads the session referenced by the request cookie. A missing,
// undecodable, unknown or expired cookie yields a new empty session and no
// error; only repository failures are returned.
func (s *Store) New(r *http.Request, name string) (*sessions.Session, error) {
	sess := s.blank(name)

	cookie, err := r.Cookie(name)
	if err != nil {
		return sess, nil
	}
	var token string
	if err := securecookie.DecodeMulti(name, cookie.Value, &token, s.codecs...); err != nil {
		return sess, nil
	}

	record, err := s.repo.GetByTokenHash(r.Context(), HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return sess, nil
	}
	if err != nil {
		return sess, oops.Code("SESSION_LOAD_FAILED").With("operation", "get session by token hash").Wrap(err)
	}
	if record.IsExpiredAt(s.now()) {
		return sess, nil
	}

	sess.ID = record.ID.String()
	sess.IsNew = false
	sess.Values[UserKey] = record.UserID.String()
	sess.Values[tokenKey{}] = token
	sess.Values[recordKey{}] = record
	return sess, nil
}

// Save persists sess and writes its cookie. A negative MaxAge deletes the
// record and expires the cookie.
func (s *Store) Save(r *http.Request, w http.ResponseWriter, sess *sessions.Session) error {
	if sess.Options == nil {
		opts := s.options
		sess.Options = &opts
	}

	if sess.Options.MaxAge < 0 {
		http.SetCookie(w, sessions.NewCookie(sess.Name(), "", sess.Options))
		if sess.ID == "" {
			return nil
		}
		return s.delete(r.Context(), sess.ID)
	}

	token, _ := sess.Values[tokenKey{}].(string)
	if sess.ID == "" {
		var err error
		token, err = s.create(r, sess)
		if err != nil {
			return err
		}
	}
	if token == "" {
		return oops.Code("SESSION_SAVE_FAILED").With("session_id", sess.ID).Errorf("session has no token")
	}

	encoded, err := securecookie.EncodeMulti(sess.Name(), token, s.codecs...)
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("operation", "encode cookie").Wrap(err)
	}
	http.SetCookie(w, sessions.NewCookie(sess.Name(), encoded, sess.Options))
	return nil
}

func (s *Store) blank(name string) *sessions.Session {
	sess := sessions.NewSession(s, name)
	opts := s.options
	sess.Options = &opts
	sess.IsNew = true
	return sess
}

func (s *Store) create(r *http.Request, sess *sessions.Session) (string, error) {
	raw, _ := sess.Values[UserKey].(string)
	userID, err := ulid.Parse(raw)
	if err != nil {
		return "", oops.Code("SESSION_SAVE_FAILED").With("user", raw).Wrap(err)
	}

	token, hash, err := GenerateToken()
	if err != nil {
		return "", err
	}

	info := clientInfo(r)
	record, err := NewSession(userID, hash, info.UserAgent, info.RemoteAddr, s.now().Add(s.ttl))
	if err != nil {
		return "", err
	}
	if err := s.repo.Create(r.Context(), record); err != nil {
		return "", oops.Code("SESSION_SAVE_FAILED").
			With("operation", "create session").
			With("user_id", userID.String()).
			Wrap(err)
	}

	sess.ID = record.ID.String()
	sess.IsNew = false
	sess.Values[tokenKey{}] = token
	sess.Values[recordKey{}] = record
	return token, nil
}

func (s *Store) delete(ctx context.Context, rawID string) error {
	id, err := ulid.Parse(rawID)
	if err != nil {
		return nil //nolint:nilerr // an unparseable ID cannot reference a record
	}
	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SESSION_DELETE_FAILED").With("session_id", rawID).Wrap(err)
	}
	return nil
}

// recordOf returns the repository record loaded or created for sess.
func recordOf(sess *sessions.Session) *Session {
	record, _ := sess.Values[recordKey{}].(*Session)
	return record
}
