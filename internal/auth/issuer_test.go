package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func newTestIssuer(t *testing.T, clock clockwork.Clock) (*Issuer, *Registry) {
	t.Helper()

	registry := newTestRegistry(t, clock)
	creds := []ClientCredential{
		{ClientID: "demo-client", Secret: "demo-secret-0123456789"},
	}
	issuer := NewIssuer(creds, []byte(testSigningKey), time.Hour, registry, clock)

	return issuer, registry
}

func TestIssuer_Issue_ValidCredentials(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer, registry := newTestIssuer(t, clock)

	grant, err := issuer.Issue(GrantClientCredentials, "demo-client", "demo-secret-0123456789")
	require.NoError(t, err)

	assert.NotEmpty(t, grant.AccessToken)
	assert.Equal(t, "Bearer", grant.TokenType)
	assert.Equal(t, 3600, grant.ExpiresIn)
	assert.Equal(t, TokenScope, grant.Scope)

	assert.True(t, registry.Contains(grant.AccessToken), "issued token should be registered")
}

func TestIssuer_Issue_UnsupportedGrantType(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer, registry := newTestIssuer(t, clock)

	_, err := issuer.Issue("authorization_code", "demo-client", "demo-secret-0123456789")
	assert.ErrorIs(t, err, ErrUnsupportedGrantType)
	assert.Equal(t, 0, registry.Len())
}

func TestIssuer_Issue_WrongSecret(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer, registry := newTestIssuer(t, clock)

	_, err := issuer.Issue(GrantClientCredentials, "demo-client", "wrong-secret-0123456789")
	assert.ErrorIs(t, err, ErrInvalidClient)
	assert.Equal(t, 0, registry.Len(), "nothing may be registered on failure")
}

func TestIssuer_Issue_UnknownClient(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer, _ := newTestIssuer(t, clock)

	_, err := issuer.Issue(GrantClientCredentials, "no-such-client", "demo-secret-0123456789")
	assert.ErrorIs(t, err, ErrInvalidClient)
}

func TestIssuer_Issue_UnknownClientAndWrongSecretIndistinguishable(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer, _ := newTestIssuer(t, clock)

	_, errUnknown := issuer.Issue(GrantClientCredentials, "no-such-client", "x")
	_, errWrong := issuer.Issue(GrantClientCredentials, "demo-client", "x")

	assert.Equal(t, errUnknown, errWrong)
}

func TestIssuer_Issue_DistinctTokensPerCall(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer, registry := newTestIssuer(t, clock)

	first, err := issuer.Issue(GrantClientCredentials, "demo-client", "demo-secret-0123456789")
	require.NoError(t, err)

	// Same client, same instant: the jti still makes the tokens distinct.
	second, err := issuer.Issue(GrantClientCredentials, "demo-client", "demo-secret-0123456789")
	require.NoError(t, err)

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.True(t, registry.Contains(first.AccessToken))
	assert.True(t, registry.Contains(second.AccessToken))
	assert.Equal(t, 2, registry.Len())
}

func TestIssuer_Issue_BcryptHashedSecret(t *testing.T) {
	clock := clockwork.NewFakeClock()
	registry := newTestRegistry(t, clock)

	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret-0123456789"), bcrypt.MinCost)
	require.NoError(t, err)

	creds := []ClientCredential{
		{ClientID: "hashed-client", SecretHash: string(hash)},
	}
	issuer := NewIssuer(creds, []byte(testSigningKey), time.Hour, registry, clock)

	grant, err := issuer.Issue(GrantClientCredentials, "hashed-client", "hashed-secret-0123456789")
	require.NoError(t, err)
	assert.NotEmpty(t, grant.AccessToken)

	_, err = issuer.Issue(GrantClientCredentials, "hashed-client", "wrong")
	assert.ErrorIs(t, err, ErrInvalidClient)
}

func TestIssuer_Issue_ConcurrentIssuance(t *testing.T) {
	clock := clockwork.NewFakeClock()
	registry := newTestRegistry(t, clock)

	const n = 20

	creds := []ClientCredential{
		{ClientID: "demo-client", Secret: "demo-secret-0123456789"},
	}
	issuer := NewIssuer(creds, []byte(testSigningKey), time.Hour, registry, clock)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens = make(map[string]struct{})
	)

	for range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			grant, err := issuer.Issue(GrantClientCredentials, "demo-client", "demo-secret-0123456789")
			if err != nil {
				t.Error(err)
				return
			}

			mu.Lock()
			tokens[grant.AccessToken] = struct{}{}
			mu.Unlock()
		}()
	}

	wg.Wait()

	assert.Len(t, tokens, n, "every issuance should produce a distinct token")
	assert.Equal(t, n, registry.Len())
}

func TestIssuer_DefaultLifetime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	registry := newTestRegistry(t, clock)

	issuer := NewIssuer(nil, []byte(testSigningKey), 0, registry, clock)
	assert.Equal(t, DefaultTokenLifetime, issuer.lifetime)
}
