package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-storefront-auth/middleware/pipeline"
)

// Auther verifies credentials and issues tokens, then validates them on
// later requests.
type Auther struct {
	provider       IdentityProvider
	tokenService   TokenService
	tokenValidator TokenValidator
	authScheme     string
	clock          Clock
	logger         Logger
	activitySink   ActivitySink
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, cfg Config) *Auther {
	return &Auther{
		provider:     provider,
		tokenService: NewTokenServiceFromConfig(cfg, defLogger{}),
		authScheme:   resolveScheme(cfg.GetAuthScheme()),
		clock:        time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithTokenService replaces the issuer, e.g. one built with a logger.
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	if ts != nil {
		s.tokenService = ts
	}
	return s
}

// WithTokenValidator sets a validator used instead of the token service,
// typically a MultiTokenValidator during key rotation.
func (s *Auther) WithTokenValidator(validator TokenValidator) *Auther {
	s.tokenValidator = validator
	return s
}

// WithClock fixes the instant used for issuing and validating.
func (s *Auther) WithClock(clock Clock) *Auther {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Validator returns the validator used for incoming tokens.
func (s *Auther) Validator() TokenValidator {
	if s.tokenValidator != nil {
		return s.tokenValidator
	}
	return s.tokenService
}

// Now returns the authenticator's current instant.
func (s *Auther) Now() time.Time {
	return s.clock()
}

// Login verifies the credentials and issues a token. Unknown users and bad
// passwords keep their distinct errors here; PublicError collapses them.
func (s *Auther) Login(ctx context.Context, username, password string) (Token, error) {
	username = NormalizeUsername(username)
	identity, err := s.provider.VerifyIdentity(ctx, username, password)
	if err != nil {
		if IsUserStoreUnavailable(err) {
			s.logger.Error("Login user store unavailable: %s", err)
		} else {
			s.logger.Info("Login rejected for %q: %s", username, failureReason(err))
		}
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"username": username,
			"reason":   failureReason(err),
		})
		return Token{}, err
	}

	if identity == nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"username": username,
			"reason":   TextCodeUnknownUser,
		})
		return Token{}, ErrUnknownUser
	}

	token, err := s.tokenService.Issue(identity, s.clock())
	if err != nil {
		s.logger.Error("Login failed to issue token: %s", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"username": username,
			"reason":   "internal",
		})
		return Token{}, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"username": username,
		"token_id": token.ID,
	})

	return token, nil
}

// ValidateBearer validates a full header value such as "Bearer <token>".
func (s *Auther) ValidateBearer(headerValue string) (*AuthenticatedIdentity, error) {
	stages := pipeline.Chain(
		pipeline.ParseBearer(s.authScheme),
		pipeline.ValidateToken(PipelineValidator(s.Validator()), s.clock),
	)

	req, err := pipeline.Run(context.Background(), pipeline.FromHeader(headerValue), stages)
	if err != nil {
		return nil, err
	}

	if req.Anonymous() {
		return nil, ErrMalformedToken
	}

	claims, ok := req.Claims.(AuthClaims)
	if !ok {
		return nil, ErrMalformedToken
	}

	return IdentityFromClaims(claims), nil
}

// SessionFromToken validates a bare token at the current instant.
func (s *Auther) SessionFromToken(raw string) (AuthClaims, error) {
	claims, err := s.Validator().Validate(raw, s.clock())
	if err != nil {
		s.logger.Debug("SessionFromToken validation failed: %s", err)
		return nil, err
	}
	return claims, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: s.clock(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "user",
	}
}

func resolveScheme(scheme string) string {
	if scheme == "" {
		return DefaultAuthScheme
	}
	return scheme
}
