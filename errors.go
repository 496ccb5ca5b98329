package auth

import (
	"net/http"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-storefront-auth/middleware/pipeline"
)

const (
	TextCodeUnknownUser          = "UNKNOWN_USER"
	TextCodeBadCredentials       = "BAD_CREDENTIALS"
	TextCodeAuthFailed           = "AUTHENTICATION_FAILED"
	TextCodeTokenMalformed       = pipeline.TextCodeTokenMalformed
	TextCodeInvalidSignature     = "TOKEN_INVALID_SIGNATURE"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeUserStoreUnavailable = "USER_STORE_UNAVAILABLE"
	TextCodeUserNotFound         = "USER_NOT_FOUND"
	TextCodeUserExists           = "USER_EXISTS"
	TextCodeEmptyPassword        = "EMPTY_PASSWORD"
	TextCodeMissingIdentity      = "MISSING_IDENTITY"
)

// ErrUnknownUser no stored record matches the username
var ErrUnknownUser = errors.New("unknown user", errors.CategoryAuth).
	WithTextCode(TextCodeUnknownUser).
	WithCode(errors.CodeUnauthorized)

// ErrBadCredentials the password does not match the stored hash
var ErrBadCredentials = errors.New("bad credentials", errors.CategoryAuth).
	WithTextCode(TextCodeBadCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAuthenticationFailed is what callers see for any credential failure
var ErrAuthenticationFailed = errors.New("authentication failed", errors.CategoryAuth).
	WithTextCode(TextCodeAuthFailed).
	WithCode(errors.CodeUnauthorized)

// ErrMalformedToken the token or its scheme prefix cannot be parsed
var ErrMalformedToken = pipeline.ErrMalformedToken

// ErrInvalidSignature the token signature does not verify with the shared secret
var ErrInvalidSignature = errors.New("token signature is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidSignature).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired the token is past its expiry instant
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrMissingIdentity a protected route was reached anonymously
var ErrMissingIdentity = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeMissingIdentity).
	WithCode(errors.CodeUnauthorized)

// ErrUserStoreUnavailable is the template for transient store failures.
// Use NewUserStoreUnavailable to attach the cause.
var ErrUserStoreUnavailable = errors.New("user store unavailable", errors.CategoryInternal).
	WithTextCode(TextCodeUserStoreUnavailable).
	WithCode(http.StatusServiceUnavailable)

var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

var ErrUserExists = errors.New("username already taken", errors.CategoryConflict).
	WithTextCode(TextCodeUserExists).
	WithCode(errors.CodeConflict)

// ErrNoEmptyString password hashing refuses empty input
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// NewUserStoreUnavailable wraps a store I/O failure so it is never
// mistaken for a credential failure.
func NewUserStoreUnavailable(cause error) *errors.Error {
	if cause == nil {
		return ErrUserStoreUnavailable.Clone()
	}
	return errors.Wrap(cause, ErrUserStoreUnavailable.Category, ErrUserStoreUnavailable.Message).
		WithTextCode(TextCodeUserStoreUnavailable).
		WithCode(ErrUserStoreUnavailable.Code).
		WithMetadata(map[string]any{"cause": cause.Error()})
}

// IsUserStoreUnavailable reports whether err is a transient store failure.
func IsUserStoreUnavailable(err error) bool {
	return hasTextCode(err, TextCodeUserStoreUnavailable)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsMalformedError will check for malformed tokens
func IsMalformedError(err error) bool {
	return hasTextCode(err, TextCodeTokenMalformed)
}

// IsInvalidSignatureError will check for forged or tampered tokens
func IsInvalidSignatureError(err error) bool {
	return hasTextCode(err, TextCodeInvalidSignature)
}

// IsCredentialError reports unknown user and bad password failures.
func IsCredentialError(err error) bool {
	return hasTextCode(err, TextCodeUnknownUser) ||
		hasTextCode(err, TextCodeBadCredentials) ||
		hasTextCode(err, TextCodeAuthFailed)
}

// PublicError collapses credential failures into ErrAuthenticationFailed so
// responses never reveal whether the username or the password was wrong.
// Other errors are returned as rich errors, wrapping unknown ones as internal.
func PublicError(err error) *errors.Error {
	if err == nil {
		return nil
	}

	if IsCredentialError(err) {
		return ErrAuthenticationFailed
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}

	return errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
		WithCode(errors.CodeInternal)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}
