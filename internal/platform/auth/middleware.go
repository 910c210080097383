package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const SessionKey contextKey = "session"

// CookieConfig controls the session cookie. The cookie carries only the
// opaque session token, wrapped in an HS256 JWT so tampering is detected
// before the store is consulted.
type CookieConfig struct {
	Name   string
	Secret []byte
	Secure bool
	TTL    time.Duration
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// Manager ties the session store to the browser cookie.
type Manager struct {
	store *SessionStore
	cfg   CookieConfig
}

func NewManager(store *SessionStore, cfg CookieConfig) *Manager {
	if cfg.Name == "" {
		cfg.Name = "medadmin_session"
	}
	return &Manager{store: store, cfg: cfg}
}

// Store returns the underlying session store.
func (m *Manager) Store() *SessionStore {
	return m.store
}

// Start creates a session for userID/role and sets the cookie. A session
// the request already carried is destroyed so tokens never survive a login.
func (m *Manager) Start(c echo.Context, userID, role string) (*Session, error) {
	if old := SessionFromContext(c.Request().Context()); old != nil {
		m.store.Destroy(old.Token)
	}
	sess, err := m.store.Create(userID, role)
	if err != nil {
		return nil, err
	}
	value, err := m.sign(sess)
	if err != nil {
		m.store.Destroy(sess.Token)
		return nil, err
	}

	cookie := m.baseCookie()
	cookie.Value = value
	if !sess.ExpiresAt.IsZero() {
		cookie.Expires = sess.ExpiresAt
	}
	c.SetCookie(cookie)

	ctx := context.WithValue(c.Request().Context(), SessionKey, sess)
	c.SetRequest(c.Request().WithContext(ctx))
	return sess, nil
}

// End destroys whatever session the request carries and clears the cookie.
// It is safe to call without a session.
func (m *Manager) End(c echo.Context) {
	if sess := SessionFromContext(c.Request().Context()); sess != nil {
		m.store.Destroy(sess.Token)
	}
	if cookie, err := c.Cookie(m.cfg.Name); err == nil {
		if token, err := m.parse(cookie.Value); err == nil {
			m.store.Destroy(token)
		}
	}

	cookie := m.baseCookie()
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	c.SetCookie(cookie)

	ctx := context.WithValue(c.Request().Context(), SessionKey, (*Session)(nil))
	c.SetRequest(c.Request().WithContext(ctx))
}

// Middleware resolves the session cookie, when present and valid, into the
// request context. Requests without a session pass through untouched.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(m.cfg.Name)
			if err != nil || cookie.Value == "" {
				return next(c)
			}
			token, err := m.parse(cookie.Value)
			if err != nil {
				return next(c)
			}
			sess := m.store.Get(token)
			if sess == nil {
				return next(c)
			}

			ctx := context.WithValue(c.Request().Context(), SessionKey, sess)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func (m *Manager) baseCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.Name,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Manager) sign(sess *Session) (string, error) {
	claims := sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		ID:       sess.Token,
		IssuedAt: jwt.NewNumericDate(sess.CreatedAt),
	}}
	if !sess.ExpiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(sess.ExpiresAt)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("signing session cookie: %w", err)
	}
	return signed, nil
}

func (m *Manager) parse(value string) (string, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		return m.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", errors.New("invalid session cookie")
	}
	if claims.ID == "" {
		return "", errors.New("session cookie missing id")
	}
	return claims.ID, nil
}

// SessionFromContext returns the request's session or nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(SessionKey).(*Session)
	return sess
}

func UserIDFromContext(ctx context.Context) string {
	if sess := SessionFromContext(ctx); sess != nil {
		return sess.UserID
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if sess := SessionFromContext(ctx); sess != nil {
		return sess.Role
	}
	return ""
}
