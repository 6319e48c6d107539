// Package trust derives a per-request trust context from a bearer
// credential. A failure to authenticate is not an error: it degrades the
// request to anonymous, and authorization is decided downstream.
package trust

import (
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the set of claims embedded in a valid credential. The
// credential is self-contained: claims are trusted verbatim for the
// duration of one request and never re-checked against the store.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Context is the trust context of a single request. Zero value is
// anonymous. Never shared across requests, never persisted.
type Context struct {
	Identity *Identity
}

var Anonymous = Context{}

func (c Context) Anonymous() bool {
	return c.Identity == nil
}

func (c Context) HasRole(role string) bool {
	return c.Identity != nil && c.Identity.Role == role
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`

	jwt.RegisteredClaims
}

// Resolver validates bearer credentials and mints new ones.
type Resolver struct {
	secret   []byte
	lifetime time.Duration
	log      log.Logger
}

func NewResolver(secret string, lifetime time.Duration, logger log.Logger) *Resolver {
	return &Resolver{
		secret:   []byte(secret),
		lifetime: lifetime,
		log:      logger,
	}
}

// Resolve turns a raw credential into a trust context. It never fails:
// an absent, malformed, expired or otherwise unverifiable credential
// yields the anonymous context with a warn log.
func (r *Resolver) Resolve(raw string) Context {
	if raw == "" {
		return Anonymous
	}

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(token *jwt.Token) (any, error) { return r.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		level.Warn(r.log).Log("msg", "invalid token", "err", err)
		return Anonymous
	}

	return Context{
		Identity: &Identity{
			ID:    claims.Subject,
			Email: claims.Email,
			Role:  claims.Role,
		},
	}
}

// Issue mints a signed credential carrying the given identity.
func (r *Resolver) Issue(identity Identity) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Email: identity.Email,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.lifetime)),
		},
	})

	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}
