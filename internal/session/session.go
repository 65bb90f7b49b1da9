// Package session owns the signed-in identity of this device. Every resource
// provider follows it: identity changes are delivered synchronously, in
// registration order, to the watchers added with OnChange.
package session

import (
	"context"
	"errors"
	"sync"

	"lifelog/internal/auth"
	"lifelog/internal/core"
	"lifelog/internal/localstore"
	"lifelog/internal/log"
)

// Errors returned to callers. The underlying cause is logged, not exposed.
var (
	ErrLoginFailed  = errors.New("failed to log in")
	ErrSignupFailed = errors.New("failed to sign up")
)

// Watcher observes identity transitions.
type Watcher func(prev, next core.Identity)

type Session struct {
	auth   auth.Authenticator
	tokens *auth.JWTManager
	users  auth.UserStorage
	kv     localstore.KV
	logger *log.Logger

	// transition serializes identity changes and the watcher calls they make.
	transition sync.Mutex

	mu       sync.RWMutex
	current  core.Identity
	token    string
	watchers []Watcher
}

// New builds a signed-out session. users may be nil, in which case Restore
// trusts any validly signed token.
func New(a auth.Authenticator, tokens *auth.JWTManager, users auth.UserStorage, kv localstore.KV, logger *log.Logger) *Session {
	return &Session{
		auth:   a,
		tokens: tokens,
		users:  users,
		kv:     kv,
		logger: logger.OrDefault(log.ComponentSession),
	}
}

// Current returns the signed-in identity, or the zero identity.
func (s *Session) Current() core.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Token returns the session token of the signed-in identity.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// OnChange registers w. Watchers must not call Login, Register, Logout or
// Restore.
func (s *Session) OnChange(w func(prev, next core.Identity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, w)
}

func (s *Session) Login(ctx context.Context, email, password string) (core.Identity, error) {
	u, err := s.auth.Authenticate(ctx, email, password)
	if err != nil {
		s.logger.WarnContext(ctx, "Login failed",
			log.FieldOperation, log.OpLogin,
			log.FieldErrorType, log.ErrorTypeAuth,
			log.FieldError, err)
		return core.Identity{}, ErrLoginFailed
	}
	id := u.Identity()
	if err := s.establish(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "Failed to establish session", log.FieldUID, id.UID, log.FieldError, err)
		return core.Identity{}, ErrLoginFailed
	}
	s.logger.InfoContext(ctx, "Logged in", log.FieldUID, id.UID)
	return id, nil
}

func (s *Session) Register(ctx context.Context, email, password string) (core.Identity, error) {
	u, err := s.auth.Register(ctx, email, password)
	if err != nil {
		s.logger.WarnContext(ctx, "Signup failed",
			log.FieldOperation, log.OpSignup,
			log.FieldErrorType, log.ErrorTypeAuth,
			log.FieldError, err)
		return core.Identity{}, ErrSignupFailed
	}
	id := u.Identity()
	if err := s.establish(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "Failed to establish session", log.FieldUID, id.UID, log.FieldError, err)
		return core.Identity{}, ErrSignupFailed
	}
	s.logger.InfoContext(ctx, "Signed up", log.FieldUID, id.UID)
	return id, nil
}

// Logout ends the session. Watchers have torn down the previous identity's
// state by the time it returns.
func (s *Session) Logout(ctx context.Context) error {
	s.transition.Lock()
	defer s.transition.Unlock()

	if err := s.kv.Delete(ctx, localstore.KeySessionToken); err != nil {
		s.logger.WarnContext(ctx, "Failed to clear stored token", log.FieldError, err)
	}
	prev := s.Current()
	s.set(core.Identity{}, "")
	s.notify(prev, core.Identity{})
	if !prev.IsZero() {
		s.logger.InfoContext(ctx, "Logged out", log.FieldUID, prev.UID)
	}
	return nil
}

// Restore resolves the identity from the token persisted by a previous
// login. A missing, expired or orphaned token leaves the session signed out.
func (s *Session) Restore(ctx context.Context) (core.Identity, error) {
	raw, ok, err := s.kv.Get(ctx, localstore.KeySessionToken)
	if err != nil {
		return core.Identity{}, err
	}
	if !ok || raw == "" {
		return core.Identity{}, nil
	}

	claims, err := s.tokens.Validate(raw)
	if err != nil {
		s.logger.InfoContext(ctx, "Discarding stored session token", log.FieldError, err)
		_ = s.kv.Delete(ctx, localstore.KeySessionToken)
		return core.Identity{}, nil
	}
	id := claims.Identity()
	if s.users != nil {
		if _, err := s.users.GetUserByID(ctx, id.UID); err != nil {
			s.logger.InfoContext(ctx, "Stored session refers to an unknown user", log.FieldUID, id.UID, log.FieldError, err)
			_ = s.kv.Delete(ctx, localstore.KeySessionToken)
			return core.Identity{}, nil
		}
	}

	s.transition.Lock()
	defer s.transition.Unlock()
	prev := s.Current()
	s.set(id, raw)
	s.notify(prev, id)
	s.logger.InfoContext(ctx, "Session restored", log.FieldUID, id.UID)
	return id, nil
}

func (s *Session) establish(ctx context.Context, id core.Identity) error {
	token, err := s.tokens.Generate(id)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, localstore.KeySessionToken, token); err != nil {
		s.logger.WarnContext(ctx, "Failed to persist session token", log.FieldError, err)
	}

	s.transition.Lock()
	defer s.transition.Unlock()
	prev := s.Current()
	s.set(id, token)
	s.notify(prev, id)
	return nil
}

func (s *Session) set(id core.Identity, token string) {
	s.mu.Lock()
	s.current = id
	s.token = token
	s.mu.Unlock()
}

func (s *Session) notify(prev, next core.Identity) {
	if prev == next {
		return
	}
	s.mu.RLock()
	watchers := append([]Watcher(nil), s.watchers...)
	s.mu.RUnlock()
	for _, w := range watchers {
		w(prev, next)
	}
}
