package auth

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultValidityWindow is how long an issued token stays valid
const DefaultValidityWindow = 10 * 24 * time.Hour

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey     []byte
	validityWindow time.Duration
	issuer         string
	audience       jwt.ClaimStrings
	logger         Logger
}

var _ TokenService = (*TokenServiceImpl)(nil)

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, validityWindow time.Duration, issuer string, audience jwt.ClaimStrings, logger Logger) *TokenServiceImpl {
	if validityWindow <= 0 {
		validityWindow = DefaultValidityWindow
	}
	return &TokenServiceImpl{
		signingKey:     signingKey,
		validityWindow: validityWindow,
		issuer:         issuer,
		audience:       audience,
		logger:         normalizeLogger(logger),
	}
}

// NewTokenServiceFromConfig builds the primary token service for cfg.
func NewTokenServiceFromConfig(cfg Config, logger Logger) *TokenServiceImpl {
	return NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetValidityWindow(),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		logger,
	)
}

// Issue signs a token for identity that expires one validity window after now.
// JWT dates have second precision, the returned Token reports the instants
// actually encoded.
func (ts *TokenServiceImpl) Issue(identity Identity, now time.Time) (Token, error) {
	if identity == nil || identity.Username() == "" {
		return Token{}, errors.New("identity must have a username", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   identity.Username(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.validityWindow)),
		},
		UID: identity.ID(),
	}

	raw, err := ts.SignClaims(claims)
	if err != nil {
		return Token{}, err
	}

	return Token{
		Raw:       raw,
		ID:        claims.TokenID(),
		Subject:   claims.Subject(),
		UserID:    claims.UserID(),
		IssuedAt:  claims.IssuedAt(),
		ExpiresAt: claims.Expires(),
	}, nil
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate checks a bare token at instant now. The signature is verified
// before any claim is decoded, so a tampered token always reports
// ErrInvalidSignature, expired or not.
func (ts *TokenServiceImpl) Validate(tokenString string, now time.Time) (AuthClaims, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, ErrMalformedToken
	}

	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil || len(sig) == 0 {
		return nil, ErrInvalidSignature
	}

	// hmac.Equal under the hood
	if err := jwt.SigningMethodHS512.Verify(parts[0]+"."+parts[1], sig, ts.signingKey); err != nil {
		return nil, ErrInvalidSignature
	}

	token, err := jwt.NewParser(ts.parserOptions(now)...).ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		return ts.signingKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		}
		ts.logger.Debug("TokenService validate rejected token: %s", err)
		return nil, errors.Wrap(err, ErrMalformedToken.Category, ErrMalformedToken.Message).
			WithTextCode(TextCodeTokenMalformed).
			WithCode(errors.CodeUnauthorized)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.Subject() == "" {
		ts.logger.Error("TokenService validate could not decode claims")
		return nil, ErrMalformedToken
	}

	return claims, nil
}

func (ts *TokenServiceImpl) parserOptions(now time.Time) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		opts = append(opts, jwt.WithAudience(ts.audience[0]))
	}
	return opts
}
