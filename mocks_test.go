package auth_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-storefront-auth"
)

const testSigningKey = "test-signing-key-with-enough-entropy"

// testNow is second aligned, JWT dates have second precision
var testNow = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

var fastHasher = auth.BcryptHasher{Cost: bcrypt.MinCost}

var aliceID = uuid.MustParse("5f0c6a2e-3d4b-4c1a-9e7f-2b8d1c0a6e31")

// testConfig implements auth.Config
type testConfig struct {
	SigningKey   string
	PreviousKeys []string
	Window       time.Duration
	Issuer       string
	Audience     []string
}

func newTestConfig() *testConfig {
	return &testConfig{SigningKey: testSigningKey, Window: auth.DefaultValidityWindow}
}

func (c *testConfig) GetSigningKey() string { return c.SigningKey }
func (c *testConfig) GetPreviousSigningKeys() []string { return c.PreviousKeys }
func (c *testConfig) GetContextKey() string { return "user" }
func (c *testConfig) GetValidityWindow() time.Duration { return c.Window }
func (c *testConfig) GetHeaderName() string { return "Authorization" }
func (c *testConfig) GetAuthScheme() string { return "Bearer" }
func (c *testConfig) GetTokenLookup() string { return "header:Authorization" }
func (c *testConfig) GetIssuer() string { return c.Issuer }
func (c *testConfig) GetAudience() []string { return c.Audience }

// MockUserFinder implements auth.UserFinder
type MockUserFinder struct {
	mock.Mock
}

func (m *MockUserFinder) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// MockPasswordAuthenticator implements auth.PasswordAuthenticator
type MockPasswordAuthenticator struct {
	mock.Mock
}

func (m *MockPasswordAuthenticator) HashPassword(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordAuthenticator) ComparePasswordAndHash(password, hash string) error {
	args := m.Called(password, hash)
	return args.Error(0)
}

// MockIdentity implements auth.Identity
type MockIdentity struct {
	mock.Mock
}

func (m *MockIdentity) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockIdentity) Username() string {
	args := m.Called()
	return args.String(0)
}

// MockLogger implements auth.Logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

func newQuietLogger() *MockLogger {
	l := new(MockLogger)
	l.On("Debug", mock.Anything, mock.Anything).Maybe()
	l.On("Info", mock.Anything, mock.Anything).Maybe()
	l.On("Warn", mock.Anything, mock.Anything).Maybe()
	l.On("Error", mock.Anything, mock.Anything).Maybe()
	return l
}

// recordingSink collects activity events
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) Events() []auth.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingSink) Last() auth.ActivityEvent {
	events := r.Events()
	if len(events) == 0 {
		return auth.ActivityEvent{}
	}
	return events[len(events)-1]
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := fastHasher.HashPassword(password)
	require.NoError(t, err)
	return hash
}

// newTestDB opens a migrated SQLite database in a temp dir.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, filepath.Join(t.TempDir(), "storefront.db"))
	require.NoError(t, err)

	require.NoError(t, auth.Migrate(context.Background(), sqldb))

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
