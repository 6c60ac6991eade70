package crestron

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// SESSION_TTL is kept below the hub's 10 minute session lifetime.
	SESSION_TTL = 9 * time.Minute
	// MAX_AUTH_RETRIES bounds how many times a request is replayed after a 401.
	MAX_AUTH_RETRIES = 1
)

// Session owns the hub auth key. It logs in lazily and renews the key when it
// gets old or when the hub rejects it.
type Session struct {
	transport *transport
	token     string
	now       func() time.Time
	logger    *zap.Logger

	mu       sync.RWMutex
	authKey  string
	version  string
	issuedAt time.Time
	logins   int

	group singleflight.Group
}

func newSession(transport *transport, token string, logger *zap.Logger) *Session {
	return &Session{
		transport: transport,
		token:     token,
		now:       time.Now,
		logger:    logger,
	}
}

// Ensure makes sure a valid auth key is cached. It is a no-op while the key is younger than SESSION_TTL.
func (s *Session) Ensure(ctx context.Context) error {
	_, err := s.currentKey(ctx)
	return err
}

// Do runs op with the current auth key. A 401 invalidates the key, forces a new login
// and replays op once; a second 401 is returned as an AuthError.
func (s *Session) Do(ctx context.Context, op func(ctx context.Context, authKey string) error) error {
	for attempt := 0; ; attempt++ {
		key, err := s.currentKey(ctx)
		if err != nil {
			return err
		}
		err = op(ctx, key)
		if err == nil || !isUnauthorized(err) {
			return err
		}
		s.invalidate(key)
		if attempt >= MAX_AUTH_RETRIES {
			s.logger.Error("crestron: hub rejected renewed session", zap.Error(err))
			return &AuthError{Op: "request", Err: err}
		}
		s.logger.Warn("crestron: session rejected by hub, logging in again", zap.Int("attempt", attempt+1))
	}
}

// Version returns the hub software version reported by the last login.
func (s *Session) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Logins returns how many successful logins this session performed.
func (s *Session) Logins() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logins
}

func (s *Session) cachedKey() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.authKey != "" && s.now().Sub(s.issuedAt) < SESSION_TTL {
		return s.authKey, true
	}
	return "", false
}

func (s *Session) currentKey(ctx context.Context) (string, error) {
	if key, ok := s.cachedKey(); ok {
		return key, nil
	}
	ch := s.group.DoChan("login", func() (any, error) {
		// another caller may have renewed while we were waiting
		if key, ok := s.cachedKey(); ok {
			return key, nil
		}
		// the login is shared by every waiting caller, it must outlive the one that started it
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.transport.client.Timeout)
		defer cancel()
		return s.login(loginCtx)
	})
	select {
	case <-ctx.Done():
		return "", &AuthError{Op: "login", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			s.logger.Debug("crestron: joined in-flight login")
		}
		return res.Val.(string), nil
	}
}

func (s *Session) login(ctx context.Context) (string, error) {
	s.logger.Debug("crestron: starting login")

	var resp loginResponse
	err := s.transport.request(ctx, "login", http.MethodGet, "/login", authTokenHeader(s.token), nil, &resp)
	if err != nil {
		s.logger.Error("crestron: login failed", zap.Error(err))
		return "", &AuthError{Op: "login", Err: err}
	}
	if resp.AuthKey == "" {
		err := &ProtocolError{Op: "login", Reason: "missing authkey"}
		s.logger.Error("crestron: login failed", zap.Error(err))
		return "", &AuthError{Op: "login", Err: err}
	}

	s.mu.Lock()
	s.authKey = resp.AuthKey
	s.version = resp.Version
	s.issuedAt = s.now()
	s.logins++
	s.mu.Unlock()

	s.logger.Info("crestron: authenticated", zap.String("version", resp.Version))
	return resp.AuthKey, nil
}

// invalidate drops key only if it is still the cached one, so a key renewed
// concurrently by another caller survives.
func (s *Session) invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authKey == key {
		s.authKey = ""
	}
}

// IsAuthError reports whether err carries an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
