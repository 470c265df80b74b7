package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// Method identifies which authentication scheme accepted a request.
type Method string

const (
	MethodAPIKey Method = "api_key"
	MethodOAuth2 Method = "oauth2"
)

// Rejection reasons. Every bearer failure collapses onto ReasonInvalidToken
// so the response never reveals whether a token was malformed, expired, or
// revoked.
const (
	ReasonAuthRequired = "authentication_required"
	ReasonInvalidToken = "invalid_or_expired_token"
)

// rejectionMessages maps machine-readable reasons onto the human-readable
// messages surfaced at the protected-resource boundary.
var rejectionMessages = map[string]string{
	ReasonAuthRequired: "Authentication required: provide an x-api-key header or an OAuth2 bearer token",
	ReasonInvalidToken: "Invalid or expired OAuth2 token",
}

// Outcome is the result of a validation attempt. A request is either
// authenticated via exactly one method or rejected; never both.
type Outcome struct {
	Authenticated bool
	Method        Method
	Subject       string // client_id for OAuth2, empty for API key

	Reason  string // machine-readable rejection code
	Message string // human-readable rejection message
}

func rejected(reason string) Outcome {
	return Outcome{Reason: reason, Message: rejectionMessages[reason]}
}

// Validator checks presented credentials against configured trust material.
// It holds no mutable state of its own and only reads the registry.
type Validator struct {
	apiKeys    map[string]struct{}
	signingKey []byte
	registry   *Registry
	clock      clockwork.Clock
}

// NewValidator builds a validator for the configured API key set and the
// shared token signing key.
func NewValidator(apiKeys []string, signingKey []byte, registry *Registry, clock clockwork.Clock) *Validator {
	keys := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		keys[k] = struct{}{}
	}

	return &Validator{
		apiKeys:    keys,
		signingKey: signingKey,
		registry:   registry,
		clock:      clock,
	}
}

// Validate checks an optional API key and an optional bearer token.
// The API key path is tried first when both are present. All failure paths
// resolve to a Rejected outcome; nothing is thrown.
//
// A token authenticates only if its signature verifies, its expiry has not
// passed, and it is still a member of the registry. The three conditions
// are deliberate defense in depth: registry membership allows revoking
// unexpired, well-signed tokens.
func (v *Validator) Validate(apiKey, bearerToken string) Outcome {
	if apiKey != "" {
		if _, ok := v.apiKeys[apiKey]; ok {
			return Outcome{Authenticated: true, Method: MethodAPIKey}
		}
	}

	if bearerToken != "" {
		claims, err := v.verifyToken(bearerToken)
		if err != nil {
			return rejected(ReasonInvalidToken)
		}
		if !v.registry.Contains(bearerToken) {
			return rejected(ReasonInvalidToken)
		}
		return Outcome{
			Authenticated: true,
			Method:        MethodOAuth2,
			Subject:       claims.Subject,
		}
	}

	return rejected(ReasonAuthRequired)
}

// verifyToken parses and verifies a bearer token's signature and expiry.
// Malformed input surfaces as an ordinary error, never a panic.
func (v *Validator) verifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return v.signingKey, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil {
		return nil, err
	}

	return claims, nil
}
