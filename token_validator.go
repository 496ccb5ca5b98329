package auth

import (
	"time"

	"github.com/goliatone/go-storefront-auth/middleware/pipeline"
)

// TokenValidator validates tokens and extracts claims without tying callers
// to a specific signing implementation.
type TokenValidator interface {
	Validate(tokenString string, now time.Time) (AuthClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string, now time.Time) (AuthClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string, now time.Time) (AuthClaims, error) {
	if f == nil {
		return nil, ErrMalformedToken
	}
	return f(tokenString, now)
}

// MultiTokenValidator tries validators in order until one succeeds.
// It treats ErrInvalidSignature as "try next" so tokens signed with a
// retired key keep working while keys rotate.
type MultiTokenValidator struct {
	validators []TokenValidator
}

// NewMultiTokenValidator filters nil validators and returns a composite validator.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(tokenString string, now time.Time) (AuthClaims, error) {
	var lastErr error
	for _, v := range m.validators {
		claims, err := v.Validate(tokenString, now)
		if err == nil {
			return claims, nil
		}
		if IsInvalidSignatureError(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrInvalidSignature
}

// NewValidatorFromConfig returns a validator accepting the current signing
// key and any previous keys still in rotation.
func NewValidatorFromConfig(cfg Config, logger Logger) TokenValidator {
	primary := NewTokenServiceFromConfig(cfg, logger)
	previous := cfg.GetPreviousSigningKeys()
	if len(previous) == 0 {
		return primary
	}

	validators := []TokenValidator{primary}
	for _, key := range previous {
		if key == "" {
			continue
		}
		validators = append(validators, NewTokenService(
			[]byte(key),
			cfg.GetValidityWindow(),
			cfg.GetIssuer(),
			cfg.GetAudience(),
			logger,
		))
	}
	return NewMultiTokenValidator(validators...)
}

// PipelineValidator exposes v to the request pipeline.
func PipelineValidator(v TokenValidator) pipeline.TokenValidator {
	return pipeline.TokenValidatorFunc(func(token string, now time.Time) (pipeline.Claims, error) {
		claims, err := v.Validate(token, now)
		if err != nil {
			return nil, err
		}
		if claims == nil {
			return nil, ErrMalformedToken
		}
		return claims, nil
	})
}
