package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// APIKeyHeader is the request header carrying a static API key.
const APIKeyHeader = "x-api-key"

const bearerPrefix = "Bearer "

// Recorder receives an event for every successful authentication.
// Recording is a side effect limited to audit; it never affects routing.
type Recorder interface {
	Record(method Method, subject string, at time.Time)
}

type contextKey int

const (
	ctxAuthMethod contextKey = iota
	ctxAuthSubject
)

// RequestMethod returns the authentication method from the context, or "".
func RequestMethod(ctx context.Context) Method {
	v, _ := ctx.Value(ctxAuthMethod).(Method)
	return v
}

// RequestSubject returns the authenticated subject from the context, or "".
// The subject is the client_id for OAuth2-authenticated requests.
func RequestSubject(ctx context.Context) string {
	v, _ := ctx.Value(ctxAuthSubject).(string)
	return v
}

// Gateway is the per-request entry point of the authentication layer.
// It extracts credentials from transport headers, delegates to the
// validator, and refuses dispatch on rejection. The gateway itself is
// stateless; concurrent requests share nothing but the registry.
type Gateway struct {
	validator *Validator
	recorder  Recorder
	logger    *slog.Logger
	clock     clockwork.Clock
}

// NewGateway wires a gateway with its validator and audit recorder.
// recorder may be nil, in which case successes are only logged.
func NewGateway(validator *Validator, recorder Recorder, logger *slog.Logger, clock clockwork.Clock) *Gateway {
	return &Gateway{
		validator: validator,
		recorder:  recorder,
		logger:    logger,
		clock:     clock,
	}
}

// Authenticate extracts credentials from the headers and validates them.
// Every successful authentication is recorded as an audit event.
func (g *Gateway) Authenticate(headers http.Header) Outcome {
	apiKey := headers.Get(APIKeyHeader)
	bearer := extractBearer(headers.Get("Authorization"))

	outcome := g.validator.Validate(apiKey, bearer)
	if outcome.Authenticated {
		now := g.clock.Now()
		if g.recorder != nil {
			g.recorder.Record(outcome.Method, outcome.Subject, now)
		}
		g.logger.Debug("request authenticated",
			slog.String("method", string(outcome.Method)),
			slog.String("subject", outcome.Subject),
		)
	}

	return outcome
}

// Middleware returns HTTP middleware that refuses dispatch for requests
// the gateway rejects. Rejections carry the JSON-RPC error envelope the
// tool transport speaks, so clients see a protocol-level error rather
// than a half-executed call.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outcome := g.Authenticate(r.Header)
		if !outcome.Authenticated {
			g.logger.Debug("request rejected",
				slog.String("reason", outcome.Reason),
				slog.String("path", r.URL.Path),
			)
			writeAuthError(w, outcome)
			return
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, ctxAuthMethod, outcome.Method)
		ctx = context.WithValue(ctx, ctxAuthSubject, outcome.Subject)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearer pulls the token out of an Authorization header value.
// The scheme is matched case-insensitively with exactly one space before
// the token; anything malformed yields no token rather than an error.
func extractBearer(header string) string {
	if len(header) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}

	token := header[len(bearerPrefix):]
	if strings.HasPrefix(token, " ") {
		return ""
	}

	return token
}

// jsonRPCError is the protocol-level error envelope returned instead of
// executing the requested operation.
type jsonRPCError struct {
	JSONRPC string          `json:"jsonrpc"`
	Error   jsonRPCErrorObj `json:"error"`
	ID      any             `json:"id"`
}

type jsonRPCErrorObj struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// jsonRPCInvalidRequest is the JSON-RPC "invalid request" error code.
const jsonRPCInvalidRequest = -32600

func writeAuthError(w http.ResponseWriter, outcome Outcome) {
	// RFC 6750 Section 3.1: no error attribute when no credential was
	// presented at all.
	if outcome.Reason == ReasonInvalidToken {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	} else {
		w.Header().Set("WWW-Authenticate", `Bearer realm="toolbooth"`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(jsonRPCError{
		JSONRPC: "2.0",
		Error: jsonRPCErrorObj{
			Code:    jsonRPCInvalidRequest,
			Message: outcome.Message,
		},
		ID: nil,
	})
}
