// Package session supplies the authenticated identity used to gate every
// store operation.
//
// The persistence layer never establishes sessions itself; it receives a
// Provider and asks it for the current session at the start of each
// operation. Providers are externally owned and may be backed by an auth
// service, a cached login, or a fixed token.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession indicates that no authenticated session is available.
var ErrNoSession = errors.New("no active session")

// User is the authenticated account behind a session.
type User struct {
	// ID is the account identifier (the token's subject).
	ID string
	// Email is informational; it may be empty.
	Email string
}

// Session carries a bearer credential and the user it belongs to. It is
// valid for the duration of one operation and is never cached by callers.
type Session struct {
	AccessToken string
	User        User
}

// Provider yields the current session, or ErrNoSession when not signed in.
type Provider interface {
	GetSession(ctx context.Context) (*Session, error)
}

// StaticProvider serves a fixed access token, deriving the user identity
// from the token's JWT claims.
//
// The token is decoded without signature verification: this layer holds no
// signing secret, and authorization is enforced by the backend on every
// request. Decoding exists only to recover the subject for blob addressing.
type StaticProvider struct {
	token string
}

// NewStaticProvider wraps an access token in a Provider.
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

// GetSession implements Provider.
func (p *StaticProvider) GetSession(ctx context.Context) (*Session, error) {
	_ = ctx
	if p.token == "" {
		return nil, ErrNoSession
	}

	user, err := UserFromToken(p.token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}

	return &Session{AccessToken: p.token, User: user}, nil
}

// UserFromToken extracts the user identity from a bearer token's claims
// without verifying the signature.
func UserFromToken(token string) (User, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return User{}, fmt.Errorf("malformed access token: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return User{}, errors.New("access token carries no subject")
	}

	user := User{ID: sub}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	return user, nil
}
