package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sebuszqo/ClaritySpend/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type gateFixture struct {
	tokens *JWTManager
	users  user.Service
	alice  user.Identity
}

func newGateFixture(t *testing.T) gateFixture {
	t.Helper()
	users := user.NewUserService(user.NewMemoryRepository(), bcrypt.MinCost, zerolog.Nop())
	alice, err := users.Register(context.Background(), "alice", "pw1")
	require.NoError(t, err)
	return gateFixture{
		tokens: newTestManager(t, "gate-secret"),
		users:  users,
		alice:  alice.Identity(),
	}
}

// serve runs the request through the gate and reports the identity the
// downstream handler saw.
func (f gateFixture) serve(t *testing.T, req *http.Request) (user.Identity, bool, int) {
	t.Helper()
	var (
		seen  user.Identity
		found bool
	)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, found = user.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	rr := httptest.NewRecorder()
	Gate(f.tokens, f.users, zerolog.Nop())(next).ServeHTTP(rr, req)
	return seen, found, rr.Code
}

func TestGate_AttachesIdentity(t *testing.T) {
	f := newGateFixture(t)
	token, err := f.tokens.Issue("alice")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	identity, found, code := f.serve(t, req)
	assert.True(t, found)
	assert.Equal(t, f.alice, identity)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestGate_NeverRejects(t *testing.T) {
	f := newGateFixture(t)

	expiredManager := newTestManager(t, "gate-secret")
	expiredManager.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, err := expiredManager.Issue("alice")
	require.NoError(t, err)

	ghost, err := f.tokens.Issue("ghost")
	require.NoError(t, err)

	foreign, err := newTestManager(t, "other-secret").Issue("alice")
	require.NoError(t, err)

	valid, err := f.tokens.Issue("alice")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"basic scheme", "Basic YWxpY2U6cHcx"},
		{"lowercase bearer", "bearer " + valid},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer garbage"},
		{"expired token", "Bearer " + expired},
		{"unknown user", "Bearer " + ghost},
		{"foreign key", "Bearer " + foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			_, found, code := f.serve(t, req)
			assert.False(t, found)
			assert.Equal(t, http.StatusNoContent, code)
		})
	}
}

func TestGate_KeepsExistingIdentity(t *testing.T) {
	f := newGateFixture(t)
	bobToken, err := f.tokens.Issue("bob")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+bobToken)
	req = req.WithContext(user.WithIdentity(req.Context(), f.alice))

	identity, found, _ := f.serve(t, req)
	assert.True(t, found)
	assert.Equal(t, f.alice, identity)
}

func TestGate_Idempotent(t *testing.T) {
	f := newGateFixture(t)
	token, err := f.tokens.Issue("alice")
	require.NoError(t, err)

	var seen user.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = user.IdentityFromContext(r.Context())
	})
	gate := Gate(f.tokens, f.users, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	gate(gate(next)).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, f.alice, seen)
}

func TestRequireIdentity(t *testing.T) {
	handler := RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"status":"error","message":"Unauthorized","code":401}`, rr.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	req = req.WithContext(user.WithIdentity(req.Context(), user.Identity{UserID: 1, Username: "alice"}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

// switchableResolver resolves a single user until it is removed.
type switchableResolver struct {
	identity user.Identity
	removed  bool
	err      error
	calls    int
}

func (r *switchableResolver) ResolveIdentity(_ context.Context, username string) (user.Identity, error) {
	r.calls++
	if r.err != nil {
		return user.Identity{}, r.err
	}
	if r.removed || username != r.identity.Username {
		return user.Identity{}, user.ErrUnauthorized
	}
	return r.identity, nil
}

func gateLogEntries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	decoder := json.NewDecoder(buf)
	for decoder.More() {
		var entry map[string]interface{}
		require.NoError(t, decoder.Decode(&entry))
		entries = append(entries, entry)
	}
	return entries
}

func serveThroughGate(tokens TokenValidator, identities IdentityResolver, log zerolog.Logger, token string) bool {
	var found bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, found = user.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	Gate(tokens, identities, log)(next).ServeHTTP(httptest.NewRecorder(), req)
	return found
}

func TestGate_TokenOutlivesRemovedUser(t *testing.T) {
	tokens := newTestManager(t, "gate-secret")
	resolver := &switchableResolver{identity: user.Identity{UserID: 3, Username: "carol"}}

	token, err := tokens.Issue("carol")
	require.NoError(t, err)
	assert.True(t, serveThroughGate(tokens, resolver, zerolog.Nop(), token))

	resolver.removed = true

	// no revocation: the token itself is still valid for its subject
	assert.NoError(t, tokens.Validate(token, "carol"))
	subject, err := tokens.Subject(token)
	require.NoError(t, err)
	assert.Equal(t, "carol", subject)

	_, err = authenticate(context.Background(), tokens, resolver, token)
	assert.ErrorIs(t, err, user.ErrUnauthorized)
	assert.False(t, isTokenError(err))

	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	assert.False(t, serveThroughGate(tokens, resolver, log, token))
	assert.Equal(t, 3, resolver.calls)

	entries := gateLogEntries(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "debug", entries[0]["level"])
	assert.Equal(t, "invalid", entries[0]["category"])
	assert.Equal(t, user.ErrUnauthorized.Error(), entries[0]["error"])
}

func TestGate_LogsFailureCategory(t *testing.T) {
	tokens := newTestManager(t, "gate-secret")
	alice := user.Identity{UserID: 1, Username: "alice"}

	expiredManager := newTestManager(t, "gate-secret")
	expiredManager.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, err := expiredManager.Issue("alice")
	require.NoError(t, err)

	valid, err := tokens.Issue("alice")
	require.NoError(t, err)

	tests := []struct {
		name         string
		token        string
		resolver     *switchableResolver
		wantLevel    string
		wantCategory string
	}{
		{"expired token", expired, &switchableResolver{identity: alice}, "debug", "expired"},
		{"garbage token", "garbage", &switchableResolver{identity: alice}, "debug", "invalid"},
		{"store failure", valid, &switchableResolver{identity: alice, err: errors.New("connection reset")}, "warn", "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := zerolog.New(&buf).Level(zerolog.DebugLevel)

			assert.False(t, serveThroughGate(tokens, tt.resolver, log, tt.token))

			entries := gateLogEntries(t, &buf)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantLevel, entries[0]["level"])
			assert.Equal(t, tt.wantCategory, entries[0]["category"])
			assert.Equal(t, "/api/transactions", entries[0]["path"])
		})
	}
}
