package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// maxRequestBody caps the size of token and revocation request bodies.
const maxRequestBody = 1 << 20

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// HandleToken returns the /oauth/token handler. The endpoint accepts both
// JSON and form-encoded bodies and only supports the client_credentials
// grant.
func HandleToken(issuer *Issuer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

		var req tokenRequest
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid form data")
				return
			}
			req = tokenRequest{
				GrantType:    r.FormValue("grant_type"),
				ClientID:     r.FormValue("client_id"),
				ClientSecret: r.FormValue("client_secret"),
			}
		}

		grant, err := issuer.Issue(req.GrantType, req.ClientID, req.ClientSecret)
		switch {
		case errors.Is(err, ErrUnsupportedGrantType):
			writeJSONError(w, http.StatusBadRequest, "unsupported_grant_type", "only client_credentials is supported")
			return
		case errors.Is(err, ErrInvalidClient):
			logger.Warn("token request with invalid client credentials",
				slog.String("client_id", req.ClientID),
			)
			writeJSONError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		case err != nil:
			logger.Error("token issuance failed", slog.String("error", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "server_error", "failed to issue token")
			return
		}

		logger.Info("access token issued", slog.String("client_id", req.ClientID))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(grant)
	}
}

type revokeRequest struct {
	Token string `json:"token"`
}

type revokeResponse struct {
	Revoked bool `json:"revoked"`
}

// HandleRevoke returns the /oauth/revoke handler. Revocation is idempotent
// and deliberately permissive: revoking an unknown or already revoked token
// still reports success, so callers cannot probe whether a token existed.
func HandleRevoke(registry *Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

		var req revokeRequest
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid form data")
				return
			}
			req.Token = r.FormValue("token")
		}

		if req.Token == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "token is required")
			return
		}

		registry.Revoke(req.Token)
		logger.Info("token revoked")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(revokeResponse{Revoked: true})
	}
}

func writeJSONError(w http.ResponseWriter, status int, errCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errCode,
		"error_description": description,
	})
}
