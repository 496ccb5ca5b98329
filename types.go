package auth

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultAuthScheme = "Bearer"
	DefaultHeaderName = "Authorization"
	DefaultContextKey = "user"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Clock returns the instant used for issuing and validating tokens.
type Clock func() time.Time

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, username, password string) (Token, error)
	ValidateBearer(headerValue string) (*AuthenticatedIdentity, error)
	SessionFromToken(raw string) (AuthClaims, error)
	Validator() TokenValidator
	Now() time.Time
}

// TokenService issues and validates signed tokens
type TokenService interface {
	TokenValidator
	Issue(identity Identity, now time.Time) (Token, error)
}

// Identity holds the attributes of a verified user
type Identity interface {
	ID() string
	Username() string
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetPreviousSigningKeys() []string
	GetContextKey() string
	GetValidityWindow() time.Duration
	GetHeaderName() string
	GetAuthScheme() string
	GetTokenLookup() string
	GetIssuer() string
	GetAudience() []string
}

// IdentityProvider ensure we have a store to retrieve auth identity
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, username, password string) (Identity, error)
	FindIdentityByUsername(ctx context.Context, username string) (Identity, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
