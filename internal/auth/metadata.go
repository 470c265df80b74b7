package auth

import (
	"encoding/json"
	"net/http"
)

// ServerMetadata is the RFC 8414 authorization server metadata response.
type ServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ScopesSupported                   []string `json:"scopes_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// HandleServerMetadata returns the /.well-known/oauth-authorization-server
// handler. Only the client_credentials grant is advertised.
func HandleServerMetadata(serverURL string) http.HandlerFunc {
	meta := ServerMetadata{
		Issuer:                            serverURL,
		TokenEndpoint:                     serverURL + "/oauth/token",
		RevocationEndpoint:                serverURL + "/oauth/revoke",
		ScopesSupported:                   []string{TokenScope},
		GrantTypesSupported:               []string{GrantClientCredentials},
		ResponseTypesSupported:            []string{"token"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(meta)
	}
}
