package jwtware

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-router"
	"github.com/goliatone/go-storefront-auth/middleware/pipeline"
)

var defaultTokenLookup = "header:" + router.HeaderAuthorization

// ErrJWTMissingOrMalformed is returned for credentials that cannot be parsed
var ErrJWTMissingOrMalformed = pipeline.ErrMalformedToken

// TokenValidator interface for validating tokens without import cycles
type TokenValidator = pipeline.TokenValidator

// AuthClaims interface for structured claims without import cycles
type AuthClaims = pipeline.Claims

// ValidationListener is invoked after a token has been validated but before
// the request reaches its handler.
type ValidationListener = pipeline.ValidationListener

type Config struct {
	Filter func(router.Context) bool
	// SuccessHandler runs after the claims are attached, before the route
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	ContextKey     string
	TokenLookup    string
	AuthScheme     string
	// TokenValidator is required for token validation
	TokenValidator TokenValidator
	// Clock supplies the validation instant, defaults to time.Now
	Clock func() time.Time

	// ContextEnricher propagates claims to the request's user context.
	ContextEnricher func(c context.Context, claims AuthClaims) context.Context

	// ValidationListeners are invoked after token validation succeeds.
	ValidationListeners []ValidationListener
}

// New returns a middleware that authenticates requests carrying a token.
// Requests without a token pass through anonymously; authorization is the
// job of a later handler.
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()
	stages := cfg.Stages()

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if cfg.Filter != nil && cfg.Filter(c) {
				return next(c)
			}

			req := ExtractRequestAuth(c, extractors)
			if err := stages(c.Context(), req); err != nil {
				return cfg.ErrorHandler(c, err)
			}

			if req.State != pipeline.Authenticated {
				return next(c)
			}

			c.Locals(cfg.ContextKey, req.Claims)

			if cfg.ContextEnricher != nil {
				c.SetContext(cfg.ContextEnricher(c.Context(), req.Claims))
			}

			if cfg.SuccessHandler != nil {
				if err := cfg.SuccessHandler(c); err != nil {
					return err
				}
			}

			return next(c)
		}
	}
}

// Stages returns the ordered authentication stages for cfg.
func (cfg Config) Stages() pipeline.Stage {
	return pipeline.Chain(
		pipeline.ParseBearer(cfg.AuthScheme),
		pipeline.ValidateToken(cfg.TokenValidator, cfg.Clock),
		pipeline.Listen(cfg.ValidationListeners...),
	)
}

// ExtractRequestAuth returns the credential found by the first extractor
// that matches, or an anonymous request.
func ExtractRequestAuth(c router.Context, extractors []JWTExtractor) *pipeline.RequestAuth {
	for _, extractor := range extractors {
		if req := extractor(c); req != nil {
			return req
		}
	}
	return pipeline.FromHeader("")
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			return c.Status(router.StatusUnauthorized).Send(nil)
		}
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: JWT middleware configuration: TokenValidator is required.")
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup)
}

// GetExtractors parses a lookup such as
// "header:Authorization,cookie:jwt,query:auth_token,param:token".
func GetExtractors(tokenLookup string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, jwtFromHeader(parts[1]))
		case "query":
			extractors = append(extractors, jwtFromQuery(parts[1]))
		case "param":
			extractors = append(extractors, jwtFromParam(parts[1]))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(parts[1]))
		}
	}

	return extractors
}

// JWTExtractor returns nil when its source holds no credential.
type JWTExtractor func(c router.Context) *pipeline.RequestAuth

// jwtFromHeader keeps the scheme prefix, ParseBearer strips it.
func jwtFromHeader(header string) JWTExtractor {
	return func(c router.Context) *pipeline.RequestAuth {
		v := c.Header(header)
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return pipeline.FromHeader(v)
	}
}

func jwtFromQuery(param string) JWTExtractor {
	return func(c router.Context) *pipeline.RequestAuth {
		return bareToken(c.Query(param, ""))
	}
}

func jwtFromParam(param string) JWTExtractor {
	return func(c router.Context) *pipeline.RequestAuth {
		return bareToken(c.Param(param))
	}
}

func jwtFromCookie(name string) JWTExtractor {
	return func(c router.Context) *pipeline.RequestAuth {
		return bareToken(c.Cookies(name))
	}
}

func bareToken(token string) *pipeline.RequestAuth {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return pipeline.FromToken(token)
}
