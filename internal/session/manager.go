package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// PrincipalLoader resolves the user behind a session on every request.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, id int64) (*Principal, error)
}

type ctxKey int

const (
	principalKey ctxKey = iota
	sessionIDKey
)

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal attached to ctx, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// IDFrom returns the session id attached to ctx, or "".
func IDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// Manager ties the cookie codec, the session store and the principal loader together.
type Manager struct {
	store  Store
	codec  CookieCodec
	users  PrincipalLoader
	logger *zap.SugaredLogger
}

func NewManager(store Store, codec CookieCodec, users PrincipalLoader, logger *zap.SugaredLogger) *Manager {
	if codec.TTL <= 0 {
		codec.TTL = 24 * time.Hour
	}
	return &Manager{store: store, codec: codec, users: users, logger: logger}
}

// Establish creates and persists a session for userID, then sets the cookie.
// The cookie is only written once the store has accepted the session.
func (m *Manager) Establish(ctx context.Context, w http.ResponseWriter, userID int64) (*Session, error) {
	s, err := New(userID, m.codec.TTL)
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	if err := m.codec.Write(w, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Destroy removes the request's session, if any, and clears the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	m.codec.Clear(w)
	sid, err := m.codec.Read(r)
	if err != nil {
		return nil
	}
	return m.store.Delete(ctx, sid)
}

// Middleware resolves the session cookie into a Principal on the request context.
// Requests without a valid session continue unauthenticated.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, err := m.codec.Read(r)
		if err != nil {
			if !errors.Is(err, http.ErrNoCookie) {
				m.logger.Debugw("rejecting session cookie", "err", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		s, err := m.store.Get(ctx, sid)
		if err != nil {
			if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionExpired) {
				m.logger.Warnw("session lookup failed", "err", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		p, err := m.users.LoadPrincipal(ctx, s.UserID)
		if err != nil {
			m.logger.Debugw("session user not loadable", "user_id", s.UserID, "err", err)
			next.ServeHTTP(w, r)
			return
		}
		ctx = context.WithValue(ctx, sessionIDKey, s.ID)
		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
	})
}
