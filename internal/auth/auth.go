// Package auth resolves the identity behind a request, either from a
// securecookie session or from a signed bearer token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/securecookie"
)

const (
	cookieName = "slotmint_session"
	sessionTTL = 14 * 24 * time.Hour
	issuer     = "slotmint"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Store struct {
	sc        *securecookie.SecureCookie
	jwtSecret []byte
	jwtTTL    time.Duration
	now       func() time.Time
}

type ctxKey string

const userKey ctxKey = "user"

func NewStore(hashKey, blockKey, jwtSecret []byte, jwtTTL time.Duration) *Store {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	if jwtTTL <= 0 {
		jwtTTL = 24 * time.Hour
	}
	return &Store{sc: sc, jwtSecret: jwtSecret, jwtTTL: jwtTTL, now: time.Now}
}

type Session struct {
	Username string
}

func (s *Store) SetSession(w http.ResponseWriter, r *http.Request, username string) error {
	encoded, err := s.sc.Encode(cookieName, map[string]string{"u": username, "v": "1"})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Store) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Store) GetSession(r *http.Request) (Session, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return Session{}, false
	}
	val := map[string]string{}
	if err := s.sc.Decode(cookieName, c.Value, &val); err != nil {
		return Session{}, false
	}
	if val["u"] == "" {
		return Session{}, false
	}
	return Session{Username: val["u"]}, true
}

// IssueToken signs an HS256 bearer token for username.
func (s *Store) IssueToken(username string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.jwtTTL)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   username,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := tok.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (s *Store) ParseToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Identify returns the username behind r. A bearer token takes precedence
// over the session cookie.
func (s *Store) Identify(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return "", false
		}
		u, err := s.ParseToken(strings.TrimSpace(raw))
		return u, err == nil
	}
	sess, ok := s.GetSession(r)
	return sess.Username, ok
}

func WithUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, userKey, username)
}

func UserFromContext(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(userKey).(string)
	return u, ok && u != ""
}
