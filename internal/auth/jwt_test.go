package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, secret string) *JWTManager {
	t.Helper()
	manager, err := NewJWTManager(TokenConfig{Secret: secret, Issuer: "claritySpend-test"})
	require.NoError(t, err)
	return manager
}

func TestIssueAndValidate(t *testing.T) {
	manager := newTestManager(t, "test-secret")

	token, err := manager.Issue("alice")
	require.NoError(t, err)

	assert.NoError(t, manager.Validate(token, "alice"))

	subject, err := manager.Subject(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
}

func TestDefaultTTL(t *testing.T) {
	manager := newTestManager(t, "")
	assert.Equal(t, 10*time.Hour, manager.TTL())
}

func TestValidate_SubjectMismatch(t *testing.T) {
	manager := newTestManager(t, "test-secret")

	token, err := manager.Issue("alice")
	require.NoError(t, err)

	err = manager.Validate(token, "bob")
	assert.ErrorIs(t, err, ErrTokenSubjectMismatch)
}

func TestValidate_Expired(t *testing.T) {
	manager := newTestManager(t, "test-secret")
	manager.now = func() time.Time { return time.Now().Add(-11 * time.Hour) }

	token, err := manager.Issue("alice")
	require.NoError(t, err)

	manager.now = time.Now
	err = manager.Validate(token, "alice")
	assert.ErrorIs(t, err, ErrTokenExpired)

	var tokenErr *TokenError
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, ErrTokenExpired, tokenErr.Kind)
}

func TestValidate_ExpiresAfterTTL(t *testing.T) {
	manager, err := NewJWTManager(TokenConfig{Secret: "test-secret", TTL: time.Minute})
	require.NoError(t, err)

	issuedAt := time.Now()
	manager.now = func() time.Time { return issuedAt }
	token, err := manager.Issue("alice")
	require.NoError(t, err)

	manager.now = func() time.Time { return issuedAt.Add(59 * time.Second) }
	assert.NoError(t, manager.Validate(token, "alice"))

	manager.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	assert.ErrorIs(t, manager.Validate(token, "alice"), ErrTokenExpired)
}

func TestValidate_WrongKey(t *testing.T) {
	issuer := newTestManager(t, "first-secret")
	validator := newTestManager(t, "second-secret")

	token, err := issuer.Issue("alice")
	require.NoError(t, err)

	assert.ErrorIs(t, validator.Validate(token, "alice"), ErrTokenSignatureInvalid)
}

func TestValidate_SignatureCheckedBeforeExpiry(t *testing.T) {
	issuer := newTestManager(t, "first-secret")
	issuer.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }
	validator := newTestManager(t, "second-secret")

	token, err := issuer.Issue("alice")
	require.NoError(t, err)

	assert.ErrorIs(t, validator.Validate(token, "alice"), ErrTokenSignatureInvalid)
}

func TestValidate_TamperedPayload(t *testing.T) {
	manager := newTestManager(t, "test-secret")

	token, err := manager.Issue("alice")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"bob","exp":4102444800}`))
	tampered := strings.Join([]string{parts[0], forged, parts[2]}, ".")

	assert.ErrorIs(t, manager.Validate(tampered, "bob"), ErrTokenSignatureInvalid)
}

func TestValidate_UnsignedToken(t *testing.T) {
	manager := newTestManager(t, "test-secret")

	claims := &jwt.StandardClaims{Subject: "alice", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	assert.ErrorIs(t, manager.Validate(token, "alice"), ErrTokenSignatureInvalid)
}

func TestValidate_OtherHMACAlgorithm(t *testing.T) {
	manager := newTestManager(t, "test-secret")

	claims := &jwt.StandardClaims{Subject: "alice", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	assert.ErrorIs(t, manager.Validate(token, "alice"), ErrTokenSignatureInvalid)
}

func TestValidate_Malformed(t *testing.T) {
	manager := newTestManager(t, "test-secret")

	for _, token := range []string{"", "not-a-token", "a.b.c", "only.two"} {
		t.Run(token, func(t *testing.T) {
			assert.ErrorIs(t, manager.Validate(token, "alice"), ErrTokenMalformed)
		})
	}
}

func TestValidate_MissingExpiry(t *testing.T) {
	manager := newTestManager(t, "test-secret")

	claims := &jwt.StandardClaims{Subject: "alice"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(manager.key)
	require.NoError(t, err)

	assert.ErrorIs(t, manager.Validate(token, "alice"), ErrTokenMalformed)
}

func TestConfiguredKeySurvivesRestart(t *testing.T) {
	before := newTestManager(t, "shared-secret")
	token, err := before.Issue("alice")
	require.NoError(t, err)

	after := newTestManager(t, "shared-secret")
	assert.NoError(t, after.Validate(token, "alice"))
}

func TestEphemeralKeyDoesNotSurviveRestart(t *testing.T) {
	before := newTestManager(t, "")
	token, err := before.Issue("alice")
	require.NoError(t, err)
	assert.NoError(t, before.Validate(token, "alice"))

	after := newTestManager(t, "")
	assert.ErrorIs(t, after.Validate(token, "alice"), ErrTokenSignatureInvalid)
}
