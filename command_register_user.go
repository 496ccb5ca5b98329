package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const TextCodeInvalidRegistration = "INVALID_REGISTRATION"

// MinPasswordLength is the shortest password accepted at registration
var MinPasswordLength = 7

type RegisterUserMessage struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Normalize returns the message with the username in its stored form.
func (e RegisterUserMessage) Normalize() RegisterUserMessage {
	e.Username = NormalizeUsername(e.Username)
	return e
}

// Validate checks the payload before anything is hashed or stored
func (e RegisterUserMessage) Validate() error {
	e = e.Normalize()
	err := validation.ValidateStruct(&e,
		validation.Field(&e.Username, validation.Required, validation.Length(3, 64)),
		validation.Field(&e.Password, validation.Required, validation.Length(MinPasswordLength, 72)),
		validation.Field(&e.ConfirmPassword, validation.Required, validation.By(func(value any) error {
			if confirm, _ := value.(string); confirm != e.Password {
				return goerrors.New("must match password", goerrors.CategoryValidation)
			}
			return nil
		})),
	)
	if err == nil {
		return nil
	}

	fields := map[string]any{}
	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			fields[field] = ferr.Error()
		}
	}

	return goerrors.New("invalid registration payload", goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidRegistration).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"fields": fields})
}

type RegisterUserHandler struct {
	repo   RepositoryManager
	hasher PasswordAuthenticator
	sink   ActivitySink
}

func NewRegisterUserHandler(repo RepositoryManager) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:   repo,
		hasher: BcryptHasher{},
		sink:   noopActivitySink{},
	}
}

func (h *RegisterUserHandler) WithPasswordAuthenticator(hasher PasswordAuthenticator) *RegisterUserHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.sink = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	_, err := h.Register(ctx, event)
	return err
}

// Register validates, hashes and stores a new user in one transaction.
func (h *RegisterUserHandler) Register(ctx context.Context, event RegisterUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.register(ctx, event)
	}
}

func (h *RegisterUserHandler) register(ctx context.Context, event RegisterUserMessage) (*User, error) {
	event = event.Normalize()
	if err := event.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{Username: event.Username}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().GetByUsernameTx(ctx, tx, event.Username); err == nil {
			return ErrUserExists
		} else if !goerrors.Is(err, ErrUserNotFound) {
			return err
		}

		hash, err := h.hasher.HashPassword(event.Password)
		if err != nil {
			return err
		}
		user.PasswordHash = hash

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}

		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	// best effort, the user is already stored
	identity := NewIdentityFromUser(user)
	_ = h.sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventUserRegistered,
		Actor:      ActorRef{ID: identity.ID(), Type: "user"},
		UserID:     identity.ID(),
		Metadata:   map[string]any{"username": user.Username},
		OccurredAt: time.Now(),
	})

	return user, nil
}
