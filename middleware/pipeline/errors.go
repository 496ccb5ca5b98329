package pipeline

import "github.com/goliatone/go-errors"

const TextCodeTokenMalformed = "TOKEN_MALFORMED"

// ErrMalformedToken the credential or its scheme prefix cannot be parsed
var ErrMalformedToken = errors.New("missing or malformed token", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

var errNoValidator = errors.New("pipeline has no token validator", errors.CategoryInternal).
	WithCode(errors.CodeInternal)
