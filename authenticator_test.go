package auth_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-storefront-auth"
)

type authFixture struct {
	auther *auth.Auther
	finder *MockUserFinder
	sink   *recordingSink
	now    time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	f := &authFixture{
		finder: new(MockUserFinder),
		sink:   &recordingSink{},
		now:    testNow,
	}

	f.finder.On("GetByUsername", context.Background(), "alice").
		Return(&auth.User{ID: aliceID, Username: "alice", PasswordHash: hashFor(t, "password123")}, nil)
	f.finder.On("GetByUsername", context.Background(), "mallory").
		Return(nil, auth.ErrUserNotFound)
	f.finder.On("GetByUsername", context.Background(), "broken").
		Return(nil, stderrors.New("database is locked"))

	provider := auth.NewUserProvider(f.finder).
		WithLogger(newQuietLogger()).
		WithPasswordAuthenticator(fastHasher)

	f.auther = auth.NewAuthenticator(provider, newTestConfig()).
		WithLogger(newQuietLogger()).
		WithActivitySink(f.sink).
		WithClock(func() time.Time { return f.now })

	return f
}

func TestAuther_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("success issues a token", func(t *testing.T) {
		f := newAuthFixture(t)

		token, err := f.auther.Login(ctx, "alice", "password123")
		require.NoError(t, err)

		assert.Equal(t, "alice", token.Subject)
		assert.Equal(t, aliceID.String(), token.UserID)
		assert.True(t, token.ExpiresAt.Equal(testNow.Add(auth.DefaultValidityWindow)))

		event := f.sink.Last()
		assert.Equal(t, auth.ActivityEventLoginSuccess, event.EventType)
		assert.Equal(t, aliceID.String(), event.UserID)
		assert.Equal(t, auth.ActorRef{ID: aliceID.String(), Type: "user"}, event.Actor)
		assert.Equal(t, token.ID, event.Metadata["token_id"])
		assert.True(t, event.OccurredAt.Equal(testNow))
	})

	t.Run("bad password", func(t *testing.T) {
		f := newAuthFixture(t)

		token, err := f.auther.Login(ctx, "alice", "nope")
		assert.ErrorIs(t, err, auth.ErrBadCredentials)
		assert.Empty(t, token.Raw)

		event := f.sink.Last()
		assert.Equal(t, auth.ActivityEventLoginFailure, event.EventType)
		assert.Equal(t, auth.TextCodeBadCredentials, event.Reason())
		assert.Equal(t, "alice", event.Metadata["username"])
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newAuthFixture(t)

		_, err := f.auther.Login(ctx, "mallory", "password123")
		assert.ErrorIs(t, err, auth.ErrUnknownUser)
		assert.Equal(t, auth.TextCodeUnknownUser, f.sink.Last().Reason())
	})

	t.Run("store failure", func(t *testing.T) {
		f := newAuthFixture(t)

		_, err := f.auther.Login(ctx, "broken", "password123")
		require.Error(t, err)
		assert.True(t, auth.IsUserStoreUnavailable(err))
		assert.Equal(t, auth.TextCodeUserStoreUnavailable, f.sink.Last().Reason())
	})
}

func TestAuther_ValidateBearer(t *testing.T) {
	f := newAuthFixture(t)

	token, err := f.auther.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		identity, err := f.auther.ValidateBearer("Bearer " + token.Raw)
		require.NoError(t, err)

		assert.Equal(t, "alice", identity.Username())
		assert.Equal(t, aliceID.String(), identity.ID())
		assert.Equal(t, token.ID, identity.TokenID)
		assert.True(t, identity.ExpiresAt.Equal(token.ExpiresAt))
	})

	t.Run("scheme is case insensitive", func(t *testing.T) {
		_, err := f.auther.ValidateBearer("bearer " + token.Raw)
		assert.NoError(t, err)
	})

	t.Run("missing prefix", func(t *testing.T) {
		_, err := f.auther.ValidateBearer("Token " + token.Raw)
		assert.True(t, auth.IsMalformedError(err))

		_, err = f.auther.ValidateBearer("Bearer" + token.Raw)
		assert.True(t, auth.IsMalformedError(err))
	})

	t.Run("empty header", func(t *testing.T) {
		_, err := f.auther.ValidateBearer("")
		assert.True(t, auth.IsMalformedError(err))
	})

	t.Run("expired", func(t *testing.T) {
		f.now = token.ExpiresAt
		defer func() { f.now = testNow }()

		_, err := f.auther.ValidateBearer("Bearer " + token.Raw)
		assert.True(t, auth.IsTokenExpiredError(err))
	})

	t.Run("forged", func(t *testing.T) {
		forger := auth.NewTokenService([]byte("forger"), 0, "", nil, nil)
		forged, err := forger.Issue(newIdentity("1", "alice"), testNow)
		require.NoError(t, err)

		_, err = f.auther.ValidateBearer("Bearer " + forged.Raw)
		assert.True(t, auth.IsInvalidSignatureError(err))
	})
}

func TestAuther_SessionFromToken(t *testing.T) {
	f := newAuthFixture(t)

	token, err := f.auther.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)

	claims, err := f.auther.SessionFromToken(token.Raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject())

	f.now = testNow.Add(auth.DefaultValidityWindow + time.Second)
	_, err = f.auther.SessionFromToken(token.Raw)
	assert.True(t, auth.IsTokenExpiredError(err))
}

func TestAuther_WithTokenValidator(t *testing.T) {
	f := newAuthFixture(t)

	retired := auth.NewTokenService([]byte("retired"), 0, "", nil, nil)
	f.auther.WithTokenValidator(auth.NewMultiTokenValidator(f.auther.TokenService(), retired))

	old, err := retired.Issue(newIdentity("1", "alice"), testNow)
	require.NoError(t, err)

	identity, err := f.auther.ValidateBearer("Bearer " + old.Raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Username())
	assert.True(t, f.auther.Now().Equal(testNow))
}
