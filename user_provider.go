package auth

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"
)

// unknownUserPassword is hashed once per hasher so unknown usernames pay
// the same comparison cost as known ones.
const unknownUserPassword = "storefront-unknown-user-placeholder"

// UserFinder is the read side of the user store the verifier needs
type UserFinder interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
}

// UserProvider verifies credentials against the user store
type UserProvider struct {
	store     UserFinder
	hasher    PasswordAuthenticator
	dummyHash func() string
	logger    Logger
}

var _ IdentityProvider = (*UserProvider)(nil)

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserFinder) *UserProvider {
	u := &UserProvider{
		store:  store,
		hasher: BcryptHasher{},
		logger: defLogger{},
	}
	u.dummyHash = dummyHashFor(u.hasher)
	return u
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.logger = normalizeLogger(l)
	return u
}

// WithPasswordAuthenticator swaps the hash comparison, e.g. for a cheaper
// bcrypt cost in tests.
func (u *UserProvider) WithPasswordAuthenticator(h PasswordAuthenticator) *UserProvider {
	if h != nil {
		u.hasher = h
		u.dummyHash = dummyHashFor(h)
	}
	return u
}

func dummyHashFor(h PasswordAuthenticator) func() string {
	return sync.OnceValue(func() string {
		hash, err := h.HashPassword(unknownUserPassword)
		if err != nil {
			return ""
		}
		return hash
	})
}

// VerifyIdentity will find the user, compare to the password, and return identity.
// It only reads the store: no attempt counters, no audit writes.
func (u UserProvider) VerifyIdentity(ctx context.Context, username, password string) (Identity, error) {
	user, err := u.findUser(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			u.burnComparison(password)
		}
		return nil, err
	}

	if err := u.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrBadCredentials) {
			return nil, ErrBadCredentials
		}
		u.logger.Error("password comparison failed for user %s: %s", user.ID, err)
		return nil, err
	}

	return NewIdentityFromUser(user), nil
}

// FindIdentityByUsername returns the identity without checking a password.
func (u UserProvider) FindIdentityByUsername(ctx context.Context, username string) (Identity, error) {
	user, err := u.findUser(ctx, username)
	if err != nil {
		return nil, err
	}
	return NewIdentityFromUser(user), nil
}

// burnComparison runs a comparison whose result is discarded.
func (u UserProvider) burnComparison(password string) {
	if u.dummyHash == nil {
		return
	}
	_ = u.hasher.ComparePasswordAndHash(password, u.dummyHash())
}

func (u UserProvider) findUser(ctx context.Context, username string) (*User, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, ErrUnknownUser
	}

	user, err := u.store.GetByUsername(ctx, username)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound), errors.IsNotFound(err):
			return nil, ErrUnknownUser
		case IsUserStoreUnavailable(err):
			return nil, err
		default:
			return nil, NewUserStoreUnavailable(err)
		}
	}

	if user == nil {
		return nil, ErrUnknownUser
	}

	return user, nil
}
