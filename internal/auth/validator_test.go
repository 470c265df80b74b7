package auth

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator(t *testing.T, clock clockwork.Clock) (*Validator, *Issuer, *Registry) {
	t.Helper()

	issuer, registry := newTestIssuer(t, clock)
	validator := NewValidator([]string{"valid-api-key-0123456789"}, []byte(testSigningKey), registry, clock)

	return validator, issuer, registry
}

func issueToken(t *testing.T, issuer *Issuer) string {
	t.Helper()

	grant, err := issuer.Issue(GrantClientCredentials, "demo-client", "demo-secret-0123456789")
	require.NoError(t, err)

	return grant.AccessToken
}

func TestValidator_ValidAPIKey(t *testing.T) {
	clock := clockwork.NewFakeClock()
	validator, _, _ := newTestValidator(t, clock)

	outcome := validator.Validate("valid-api-key-0123456789", "")

	assert.True(t, outcome.Authenticated)
	assert.Equal(t, MethodAPIKey, outcome.Method)
	assert.Empty(t, outcome.Subject)
}

func TestValidator_NoCredentials(t *testing.T) {
	clock := clockwork.NewFakeClock()
	validator, _, _ := newTestValidator(t, clock)

	outcome := validator.Validate("", "")

	assert.False(t, outcome.Authenticated)
	assert.Equal(t, ReasonAuthRequired, outcome.Reason)
	assert.Contains(t, outcome.Message, "x-api-key")
}

func TestValidator_WrongAPIKeyWithoutBearer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	validator, _, _ := newTestValidator(t, clock)

	// A wrong API key with no bearer token falls through the key check
	// and lands on the no-credentials rejection.
	outcome := validator.Validate("wrong-key", "")

	assert.False(t, outcome.Authenticated)
	assert.Equal(t, ReasonAuthRequired, outcome.Reason)
}

func TestValidator_WrongAPIKeyFallsBackToBearer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	validator, issuer, _ := newTestValidator(t, clock)

	token := issueToken(t, issuer)

	outcome := validator.Validate("wrong-key", token)

	assert.True(t, outcome.Authenticated)
	assert.Equal(t, MethodOAuth2, outcome.Method)
	assert.Equal(t, "demo-client", outcome.Subject)
}

func TestValidator_APIKeyTakesPrecedenceOverBearer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	validator, issuer, registry := newTestValidator(t, clock)

	token := issueToken(t, issuer)
	registry.Revoke(token)

	// Valid API key wins even when the accompanying token is revoked.
	outcome := validator.Validate("valid-api-key-0123456789", token)

	assert.True(t, outcome.Authenticated)
	assert.Equal(t, MethodAPIKey, outcome.Method)
}

func TestValidator_ValidToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	validator, issuer, _ := newTestValidator(t, clock)

	token := issueToken(t, issuer)

	outcome := validator.Validate("", token)

	assert.True(t, outcome.Authenticated)
	assert.Equal(t, MethodOAuth2, outcome.Method)
	assert.Equal(t, "demo-client", outcome.Subject)
}

func TestValidator_RevokedToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	validator, issuer, registry := newTestValidator(t, clock)

	token := issueToken(t, issuer)
	registry.Revoke(token)

	outcome := validator.Validate("", token)

	assert.False(t, outcome.Authenticated)
	assert.Equal(t, ReasonInvalidToken, outcome.Reason)
}

func TestValidator_MalformedToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	validator, _, _ := newTestValidator(t, clock)

	outcome := validator.Validate("", "not-a-real-token")

	assert.False(t, outcome.Authenticated)
	assert.Equal(t, ReasonInvalidToken, outcome.Reason)
}

func TestValidator_TokenSignedWithDifferentKey(t *testing.T) {
	clock := clockwork.NewFakeClock()
	validator, _, registry := newTestValidator(t, clock)

	otherIssuer := NewIssuer(
		[]ClientCredential{{ClientID: "demo-client", Secret: "demo-secret-0123456789"}},
		[]byte("another-signing-key-0123456789xx"), time.Hour, registry, clock,
	)
	token := issueToken(t, otherIssuer)

	outcome := validator.Validate("", token)

	assert.False(t, outcome.Authenticated)
	assert.Equal(t, ReasonInvalidToken, outcome.Reason)
}

func TestValidator_ExpiryBoundary(t *testing.T) {
	clock := clockwork.NewFakeClock()
	validator, issuer, _ := newTestValidator(t, clock)

	token := issueToken(t, issuer)

	clock.Advance(3599 * time.Second)
	outcome := validator.Validate("", token)
	assert.True(t, outcome.Authenticated, "token should still be valid one second before expiry")

	clock.Advance(2 * time.Second)
	outcome = validator.Validate("", token)
	assert.False(t, outcome.Authenticated, "token should be invalid one second after expiry")
	assert.Equal(t, ReasonInvalidToken, outcome.Reason)
}

func TestValidator_FailureReasonsAreIndistinguishable(t *testing.T) {
	clock := clockwork.NewFakeClock()
	validator, issuer, registry := newTestValidator(t, clock)

	revoked := issueToken(t, issuer)
	registry.Revoke(revoked)

	expired := issueToken(t, issuer)
	clock.Advance(2 * time.Hour)

	malformed := validator.Validate("", "garbage")
	wasRevoked := validator.Validate("", revoked)
	wasExpired := validator.Validate("", expired)

	// Nothing in the outcome reveals which failure mode applied.
	assert.Equal(t, malformed, wasRevoked)
	assert.Equal(t, malformed, wasExpired)
}
