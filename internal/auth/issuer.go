package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

// TokenScope is the fixed scope carried by every issued access token.
const TokenScope = "mcp:tools"

// GrantClientCredentials is the only grant type the token endpoint accepts.
const GrantClientCredentials = "client_credentials"

// DefaultTokenLifetime is how long an issued access token remains valid.
const DefaultTokenLifetime = time.Hour

// Issuance errors. The token endpoint maps these onto OAuth2 error codes.
var (
	ErrUnsupportedGrantType = errors.New("only the client_credentials grant type is supported")
	ErrInvalidClient        = errors.New("invalid client credentials")
)

// ClientCredential is a configured client allowed to obtain tokens.
// Exactly one of Secret or SecretHash is set: Secret holds the plaintext
// secret for exact-match comparison, SecretHash holds a bcrypt hash.
type ClientCredential struct {
	ClientID   string
	Secret     string
	SecretHash string
}

// TokenGrant is the successful response of the token endpoint.
type TokenGrant struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// Claims is the payload signed into every access token.
type Claims struct {
	jwt.RegisteredClaims

	Scope string `json:"scope"`
}

// Issuer creates signed, time-bounded access tokens for configured clients
// and registers each one with the token registry.
type Issuer struct {
	credentials map[string]ClientCredential // client_id -> credential
	signingKey  []byte
	lifetime    time.Duration
	registry    *Registry
	clock       clockwork.Clock
}

// NewIssuer builds an issuer from the configured credential set. The
// signing key is the process-wide HMAC secret shared with the validator.
func NewIssuer(creds []ClientCredential, signingKey []byte, lifetime time.Duration, registry *Registry, clock clockwork.Clock) *Issuer {
	byID := make(map[string]ClientCredential, len(creds))
	for _, c := range creds {
		byID[c.ClientID] = c
	}

	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}

	return &Issuer{
		credentials: byID,
		signingKey:  signingKey,
		lifetime:    lifetime,
		registry:    registry,
		clock:       clock,
	}
}

// Issue validates the grant type and client credentials, then mints a new
// access token and registers it. Every successful call produces a distinct
// token; multiple live tokens per client are allowed.
//
// A credential mismatch returns ErrInvalidClient without revealing which
// field was wrong.
func (i *Issuer) Issue(grantType, clientID, clientSecret string) (TokenGrant, error) {
	if grantType != GrantClientCredentials {
		return TokenGrant{}, ErrUnsupportedGrantType
	}

	cred, ok := i.credentials[clientID]
	if !ok {
		// Burn comparable time for unknown clients so the lookup does
		// not distinguish "no such client" from "wrong secret".
		secretsMatch("\x00invalid", clientSecret)
		return TokenGrant{}, ErrInvalidClient
	}

	if !cred.verifySecret(clientSecret) {
		return TokenGrant{}, ErrInvalidClient
	}

	now := i.clock.Now()
	expiresAt := now.Add(i.lifetime)

	// The jti makes every token unique even when the same client obtains
	// several tokens within the same second.
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Scope: TokenScope,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return TokenGrant{}, fmt.Errorf("signing access token: %w", err)
	}

	i.registry.Register(signed, expiresAt)

	return TokenGrant{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(i.lifetime.Seconds()),
		Scope:       TokenScope,
	}, nil
}

// verifySecret checks a presented secret against the configured credential.
func (c ClientCredential) verifySecret(presented string) bool {
	if c.SecretHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(presented)) == nil
	}
	return secretsMatch(c.Secret, presented)
}

// secretsMatch compares two secrets in constant time. Both sides are
// SHA-256 hashed first to normalize length: ConstantTimeCompare returns 0
// immediately when lengths differ, which would leak secret length if raw
// values were compared.
func secretsMatch(expected, presented string) bool {
	expectedH := sha256.Sum256([]byte(expected))
	presentedH := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(expectedH[:], presentedH[:]) == 1
}
