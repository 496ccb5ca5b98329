package auth_test

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-storefront-auth"
)

type httpFixture struct {
	app    *fiber.App
	auther *auth.Auther
	sink   *recordingSink
	now    time.Time
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	return newHTTPFixtureWithFinder(t, nil)
}

// newHTTPFixtureWithFinder verifies logins against finder instead of the
// database. Registration and lookups still use the database.
func newHTTPFixtureWithFinder(t *testing.T, finder auth.UserFinder) *httpFixture {
	t.Helper()

	f := &httpFixture{now: testNow, sink: &recordingSink{}}
	repo := auth.NewRepositoryManager(newTestDB(t))
	if finder == nil {
		finder = repo.Users()
	}

	provider := auth.NewUserProvider(finder).
		WithLogger(newQuietLogger()).
		WithPasswordAuthenticator(fastHasher)

	f.auther = auth.NewAuthenticator(provider, newTestConfig()).
		WithLogger(newQuietLogger()).
		WithActivitySink(f.sink).
		WithClock(func() time.Time { return f.now })

	httpAuth, err := auth.NewHTTPAuthenticator(f.auther, newTestConfig())
	require.NoError(t, err)
	httpAuth.WithLogger(newQuietLogger()).WithActivitySink(f.sink)

	register := auth.NewRegisterUserHandler(repo).
		WithPasswordAuthenticator(fastHasher).
		WithActivitySink(f.sink)

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		return fiber.New()
	})
	auth.RegisterAuthRoutes(srv.Router(), httpAuth, repo,
		auth.WithControllerLogger(newQuietLogger()),
		auth.WithRegisterUserHandler(register),
	)
	f.app = srv.WrappedRouter()

	return f
}

func (f *httpFixture) do(t *testing.T, method, path string, body any, header string) (*http.Response, string) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set("Authorization", header)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(out)
}

// register creates a user and returns the stored record as JSON fields.
func (f *httpFixture) register(t *testing.T, username, password string) map[string]any {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/user/create", map[string]string{
		"username":        username,
		"password":        password,
		"confirmPassword": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	var user map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &user))
	return user
}

func (f *httpFixture) login(t *testing.T, username, password string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return resp.Header.Get("Authorization")
}

func TestLoginHandler(t *testing.T) {
	f := newHTTPFixture(t)
	f.register(t, "alice", "password123")

	t.Run("valid credentials", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/login", map[string]string{
			"username": "alice",
			"password": "password123",
		}, "")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, body)

		header := resp.Header.Get("Authorization")
		require.True(t, strings.HasPrefix(header, "Bearer "), header)
		assert.Len(t, strings.Split(strings.TrimPrefix(header, "Bearer "), "."), 3)

		identity, err := f.auther.ValidateBearer(header)
		require.NoError(t, err)
		assert.Equal(t, "alice", identity.Username())
	})

	t.Run("wrong password", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/login", map[string]string{
			"username": "alice",
			"password": "wrong-password",
		}, "")

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, body)
		assert.Empty(t, resp.Header.Get("Authorization"))
	})

	t.Run("unknown user looks the same", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/login", map[string]string{
			"username": "nobody",
			"password": "password123",
		}, "")

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, body)
		assert.Empty(t, resp.Header.Get("Authorization"))
	})

	t.Run("unparsable body", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/login", "{not json", "")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, auth.TextCodeInvalidPayload)
	})
}

func TestLoginHandler_UserStoreUnavailable(t *testing.T) {
	finder := new(MockUserFinder)
	finder.On("GetByUsername", mock.Anything, "alice").
		Return(nil, stderrors.New("database is locked"))

	f := newHTTPFixtureWithFinder(t, finder)

	resp, body := f.do(t, http.MethodPost, "/login", map[string]string{
		"username": "alice",
		"password": "password123",
	}, "")

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, auth.TextCodeUserStoreUnavailable)
	assert.NotContains(t, body, "database is locked")
	assert.Empty(t, resp.Header.Get("Authorization"))
	finder.AssertExpectations(t)
}

func TestRegisterThenLogin_TrimsUsername(t *testing.T) {
	f := newHTTPFixture(t)

	user := f.register(t, " bob ", "password123")
	assert.Equal(t, "bob", user["username"])

	for _, username := range []string{"bob", " bob", "bob "} {
		header := f.login(t, username, "password123")
		identity, err := f.auther.ValidateBearer(header)
		require.NoError(t, err)
		assert.Equal(t, "bob", identity.Username())
	}

	resp, body := f.do(t, http.MethodPost, "/api/user/create", map[string]string{
		"username":        "bob",
		"password":        "password123",
		"confirmPassword": "password123",
	}, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, auth.TextCodeUserExists)
}

func TestProtectedRoutes(t *testing.T) {
	f := newHTTPFixture(t)
	f.register(t, "alice", "password123")
	header := f.login(t, "alice", "password123")

	t.Run("valid token", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/me", nil, header)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)

		var identity map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &identity))
		assert.Equal(t, "alice", identity["username"])
	})

	t.Run("no header", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/me", nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, body)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/me", nil, "Basic "+strings.TrimPrefix(header, "Bearer "))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, body)
	})

	t.Run("tampered token", func(t *testing.T) {
		i := len(header) - 10
		resp, body := f.do(t, http.MethodGet, "/api/me", nil, tamper(header, i))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, body)
		assert.Equal(t, auth.TextCodeInvalidSignature, f.sink.Last().Reason())
	})

	t.Run("expired token", func(t *testing.T) {
		f.now = testNow.Add(auth.DefaultValidityWindow)
		defer func() { f.now = testNow }()

		resp, body := f.do(t, http.MethodGet, "/api/me", nil, header)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, body)

		event := f.sink.Last()
		assert.Equal(t, auth.ActivityEventTokenRejected, event.EventType)
		assert.Equal(t, auth.TextCodeTokenExpired, event.Reason())
	})

	t.Run("just before expiry", func(t *testing.T) {
		f.now = testNow.Add(auth.DefaultValidityWindow - time.Second)
		defer func() { f.now = testNow }()

		resp, _ := f.do(t, http.MethodGet, "/api/me", nil, header)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestUserRoutes(t *testing.T) {
	f := newHTTPFixture(t)
	alice := f.register(t, "alice", "password123")
	header := f.login(t, "alice", "password123")

	t.Run("lookup by username", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/user/alice", nil, header)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)

		var user map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &user))
		assert.Equal(t, "alice", user["username"])
		assert.NotContains(t, user, "password_hash")
		assert.NotContains(t, body, "$2a$")
	})

	t.Run("lookup by id", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/user/id/"+alice["id"].(string), nil, header)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.Contains(t, body, `"username":"alice"`)
	})

	t.Run("lookup requires a token", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/user/alice", nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, body)
	})

	t.Run("missing user", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/user/bob", nil, header)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, body, auth.TextCodeUserNotFound)

		resp, _ = f.do(t, http.MethodGet, "/api/user/id/"+uuid.NewString(), nil, header)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad id", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/api/user/id/abc", nil, header)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/api/user/create", map[string]string{
			"username":        "alice",
			"password":        "password123",
			"confirmPassword": "password123",
		}, "")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Contains(t, body, auth.TextCodeUserExists)
	})

	t.Run("confirmation mismatch", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/api/user/create", map[string]string{
			"username":        "bob",
			"password":        "password123",
			"confirmPassword": "password321",
		}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "confirmPassword")
	})
}

func TestNewHTTPAuthenticator_RequiresDependencies(t *testing.T) {
	_, err := auth.NewHTTPAuthenticator(nil, newTestConfig())
	assert.Error(t, err)

	f := newAuthFixture(t)
	_, err = auth.NewHTTPAuthenticator(f.auther, nil)
	assert.Error(t, err)
}
