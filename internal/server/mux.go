// Package server provides HTTP server construction for toolbooth.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/toolbooth/toolbooth/internal/auth"
)

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Issuer     *auth.Issuer
	Registry   *auth.Registry
	Gateway    *auth.Gateway
	MCPHandler http.Handler
	Logger     *slog.Logger
	ServerURL  string
}

// NewMux builds the HTTP mux with OAuth discovery, token, revocation,
// health, and tool endpoints. The tool endpoint is protected by the auth
// gateway; everything auth-related stays open so clients can obtain
// tokens in the first place.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", auth.HandleServerMetadata(cfg.ServerURL))
	mux.HandleFunc("/oauth/token", auth.HandleToken(cfg.Issuer, cfg.Logger))
	mux.HandleFunc("/oauth/revoke", auth.HandleRevoke(cfg.Registry, cfg.Logger))
	mux.HandleFunc("/health", handleHealth())
	mux.Handle("/mcp", cfg.Gateway.Middleware(cfg.MCPHandler))

	return mux
}

// handleHealth returns a liveness probe handler. Always responds 200 if
// the server process is running.
func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
