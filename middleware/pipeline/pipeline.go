package pipeline

import (
	"context"
	"strings"
	"time"
)

// State is the authentication state of a single request.
type State int

const (
	Unauthenticated State = iota
	Validating
	Authenticated
	Rejected
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Validating:
		return "validating"
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Claims mirrors the validated claims exposed by the auth package
type Claims interface {
	Subject() string
	UserID() string
	Expires() time.Time
}

// TokenValidator checks a bare token (no scheme prefix) at the given instant.
type TokenValidator interface {
	Validate(token string, now time.Time) (Claims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(token string, now time.Time) (Claims, error)

func (f TokenValidatorFunc) Validate(token string, now time.Time) (Claims, error) {
	return f(token, now)
}

// ValidationListener runs after a token validated. An error rejects the request.
type ValidationListener func(ctx context.Context, claims Claims) error

// RequestAuth carries the credential and its state through the stages.
type RequestAuth struct {
	// Header is the raw header value, scheme prefix included.
	Header string
	// Token is the bare token once the prefix has been stripped.
	Token  string
	State  State
	Claims Claims
	Err    error
}

// FromHeader starts a request from a raw header value, e.g. "Bearer abc".
func FromHeader(value string) *RequestAuth {
	return &RequestAuth{Header: value}
}

// FromToken starts a request from a bare token, as found in a cookie or a
// query parameter. An empty token leaves the request anonymous.
func FromToken(token string) *RequestAuth {
	token = strings.TrimSpace(token)
	if token == "" {
		return &RequestAuth{}
	}
	return &RequestAuth{Token: token, State: Validating}
}

func (r *RequestAuth) reject(err error) error {
	r.State = Rejected
	r.Err = err
	r.Claims = nil
	return err
}

// Anonymous reports whether no credential was presented.
func (r *RequestAuth) Anonymous() bool {
	return r.State == Unauthenticated
}

// Stage is one step of the pipeline. Returning an error stops the chain.
type Stage func(ctx context.Context, req *RequestAuth) error

// Chain runs stages in order and stops at the first error.
func Chain(stages ...Stage) Stage {
	return func(ctx context.Context, req *RequestAuth) error {
		for _, stage := range stages {
			if stage == nil {
				continue
			}
			if err := stage(ctx, req); err != nil {
				return err
			}
		}
		return nil
	}
}

// Run executes stage against req and returns the final request state.
func Run(ctx context.Context, req *RequestAuth, stage Stage) (*RequestAuth, error) {
	if req == nil {
		req = &RequestAuth{}
	}
	err := stage(ctx, req)
	return req, err
}

// ParseBearer strips the scheme prefix from the header value. An empty
// header keeps the request anonymous.
func ParseBearer(scheme string) Stage {
	return func(_ context.Context, req *RequestAuth) error {
		if req.State != Unauthenticated {
			return nil
		}
		if strings.TrimSpace(req.Header) == "" {
			return nil
		}

		token, err := ExtractBearer(req.Header, scheme)
		if err != nil {
			return req.reject(err)
		}

		req.Token = token
		req.State = Validating
		return nil
	}
}

// ValidateToken verifies the token with v at the instant given by clock.
func ValidateToken(v TokenValidator, clock func() time.Time) Stage {
	if clock == nil {
		clock = time.Now
	}
	return func(_ context.Context, req *RequestAuth) error {
		if req.State != Validating {
			return nil
		}
		if v == nil {
			return req.reject(errNoValidator)
		}

		claims, err := v.Validate(req.Token, clock())
		if err != nil {
			return req.reject(err)
		}
		if claims == nil {
			return req.reject(ErrMalformedToken)
		}

		req.Claims = claims
		req.State = Authenticated
		return nil
	}
}

// Listen invokes listeners for authenticated requests.
func Listen(listeners ...ValidationListener) Stage {
	return func(ctx context.Context, req *RequestAuth) error {
		if req.State != Authenticated {
			return nil
		}
		for _, listener := range listeners {
			if listener == nil {
				continue
			}
			if err := listener(ctx, req.Claims); err != nil {
				return req.reject(err)
			}
		}
		return nil
	}
}

// ExtractBearer returns the token that follows scheme in value. The scheme
// match is case insensitive and must be followed by a space.
func ExtractBearer(value, scheme string) (string, error) {
	scheme = strings.TrimSpace(scheme)
	value = strings.TrimSpace(value)
	if scheme == "" {
		if value == "" {
			return "", ErrMalformedToken
		}
		return value, nil
	}

	l := len(scheme)
	if len(value) <= l+1 || !strings.EqualFold(value[:l], scheme) || value[l] != ' ' {
		return "", ErrMalformedToken
	}

	token := strings.TrimSpace(value[l+1:])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMalformedToken
	}
	return token, nil
}
