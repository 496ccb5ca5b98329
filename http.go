package auth

import (
	"context"
	"encoding/json"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-storefront-auth/middleware/jwtware"
)

const TextCodeInvalidPayload = "INVALID_PAYLOAD"

// LoginRequest is the login payload, it only lives for the request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

var errInvalidLoginPayload = errors.New("login payload must be a JSON object", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidPayload).
	WithCode(errors.CodeBadRequest)

type RouteAuthenticator struct {
	auth                Authenticator
	cfg                 Config
	activitySink        ActivitySink
	validationListeners []jwtware.ValidationListener
	Logger              Logger
	ErrorHandler        router.ErrorHandler
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	if auther == nil {
		return nil, errors.New("authenticator is required", errors.CategoryInternal)
	}
	if cfg == nil {
		return nil, errors.New("config is required", errors.CategoryInternal)
	}

	a := &RouteAuthenticator{
		auth:         auther,
		cfg:          cfg,
		activitySink: noopActivitySink{},
		Logger:       defLogger{},
	}
	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

func (a *RouteAuthenticator) WithLogger(l Logger) *RouteAuthenticator {
	a.Logger = normalizeLogger(l)
	return a
}

// WithActivitySink records rejected tokens.
func (a *RouteAuthenticator) WithActivitySink(sink ActivitySink) *RouteAuthenticator {
	a.activitySink = normalizeActivitySink(sink)
	return a
}

// WithValidationListeners adds listeners that run after a token validates.
func (a *RouteAuthenticator) WithValidationListeners(listeners ...jwtware.ValidationListener) *RouteAuthenticator {
	a.validationListeners = append(a.validationListeners, listeners...)
	return a
}

// LoginHandler answers POST /login. Success sets the configured header to
// "<scheme> <token>" with an empty body.
func (a *RouteAuthenticator) LoginHandler() router.HandlerFunc {
	return func(c router.Context) error {
		var payload LoginRequest
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			return a.ErrorHandler(c, errInvalidLoginPayload)
		}

		token, err := a.auth.Login(c.Context(), payload.Username, payload.Password)
		if err != nil {
			return a.ErrorHandler(c, err)
		}

		c.SetHeader(a.headerName(), token.HeaderValue(a.cfg.GetAuthScheme()))
		return c.Status(router.StatusOK).Send(nil)
	}
}

// Authenticate validates a presented token and attaches the identity to
// the request context. Requests without a token continue anonymously.
func (a *RouteAuthenticator) Authenticate() router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		ErrorHandler:        a.tokenErrorHandler,
		TokenValidator:      PipelineValidator(a.auth.Validator()),
		Clock:               a.auth.Now,
		AuthScheme:          a.cfg.GetAuthScheme(),
		ContextKey:          a.contextKey(),
		TokenLookup:         a.tokenLookup(),
		ContextEnricher:     enrichContext,
		ValidationListeners: a.validationListeners,
	})
}

// RequireIdentity rejects anonymous requests, it runs after Authenticate.
func (a *RouteAuthenticator) RequireIdentity() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if _, ok := CurrentIdentity(c); !ok {
				return a.ErrorHandler(c, ErrMissingIdentity)
			}
			return next(c)
		}
	}
}

// ProtectedRoute guards a route: Authenticate, then RequireIdentity.
func (a *RouteAuthenticator) ProtectedRoute() router.MiddlewareFunc {
	authenticate := a.Authenticate()
	guard := a.RequireIdentity()
	return func(next router.HandlerFunc) router.HandlerFunc {
		return authenticate(guard(next))
	}
}

func (a *RouteAuthenticator) tokenErrorHandler(c router.Context, err error) error {
	if recErr := a.activitySink.Record(c.Context(), ActivityEvent{
		EventType:  ActivityEventTokenRejected,
		Actor:      ActorRef{Type: "unknown"},
		Metadata:   map[string]any{"reason": failureReason(err), "path": c.Path()},
		OccurredAt: a.auth.Now(),
	}); recErr != nil {
		a.Logger.Warn("activity sink record error: %v", recErr)
	}
	return a.ErrorHandler(c, err)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	richErr := PublicError(err)

	code := richErr.Code
	if code == 0 {
		code = router.StatusInternalServerError
	}

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		a.Logger.Debug("auth rejected %s: %s", c.Path(), failureReason(err))
		return c.Status(code).Send(nil)
	}

	if code >= router.StatusInternalServerError {
		a.Logger.Error(
			"request failed %s: %s %s",
			c.Path(),
			richErr.Message,
			print.MaybePrettyJSON(richErr.Metadata),
		)
	}

	return c.JSON(code, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
			"metadata":  publicMetadata(richErr),
		},
	})
}

func (a *RouteAuthenticator) headerName() string {
	if h := a.cfg.GetHeaderName(); h != "" {
		return h
	}
	return DefaultHeaderName
}

func (a *RouteAuthenticator) contextKey() string {
	if k := a.cfg.GetContextKey(); k != "" {
		return k
	}
	return DefaultContextKey
}

func (a *RouteAuthenticator) tokenLookup() string {
	if l := a.cfg.GetTokenLookup(); l != "" {
		return l
	}
	return "header:" + a.headerName()
}

func enrichContext(ctx context.Context, claims jwtware.AuthClaims) context.Context {
	ac, ok := claims.(AuthClaims)
	if !ok {
		return ctx
	}
	ctx = WithClaimsContext(ctx, ac)
	return WithIdentityContext(ctx, IdentityFromClaims(ac))
}

// publicMetadata keeps validation details and drops internal causes.
func publicMetadata(e *errors.Error) map[string]any {
	if e.Category != errors.CategoryValidation || len(e.Metadata) == 0 {
		return nil
	}
	return e.Metadata
}
