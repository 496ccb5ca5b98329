package auth

import "time"

// Token is a signed, self contained credential. It is never stored.
type Token struct {
	Raw       string
	ID        string
	Subject   string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HeaderValue renders the token with the given scheme, e.g. "Bearer <raw>".
func (t Token) HeaderValue(scheme string) string {
	if scheme == "" {
		scheme = DefaultAuthScheme
	}
	return scheme + " " + t.Raw
}

// AuthenticatedIdentity is the identity a validated token vouches for.
// It lives in the request context for that request only.
type AuthenticatedIdentity struct {
	Subject   string    `json:"username"`
	UserID    string    `json:"user_id"`
	TokenID   string    `json:"token_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

var _ Identity = (*AuthenticatedIdentity)(nil)

func (a *AuthenticatedIdentity) ID() string {
	return a.UserID
}

func (a *AuthenticatedIdentity) Username() string {
	return a.Subject
}

// IdentityFromClaims builds the request identity from validated claims.
func IdentityFromClaims(claims AuthClaims) *AuthenticatedIdentity {
	if claims == nil {
		return nil
	}
	return &AuthenticatedIdentity{
		Subject:   claims.Subject(),
		UserID:    claims.UserID(),
		TokenID:   claims.TokenID(),
		ExpiresAt: claims.Expires(),
	}
}
