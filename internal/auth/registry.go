// Package auth implements the authentication core of toolbooth: API key
// validation, OAuth2 client-credentials token issuance, an in-memory
// registry of live tokens, and the HTTP gateway that guards the tool
// endpoint. All token state is in-memory; tokens are invalidated on restart.
package auth

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// sweepInterval controls how often expired registry entries are reaped.
const sweepInterval = 5 * time.Minute

// Registry is the process-wide set of currently honored access tokens.
// A token authenticates only while it is a member; revocation removes it
// regardless of its remaining cryptographic validity.
//
// Expiry is enforced at validation time by the token's own exp claim, not
// by registry membership. The expiry recorded here only drives the
// background sweep that keeps the set from growing without bound under
// sustained issuance.
type Registry struct {
	mu     sync.RWMutex
	tokens map[string]time.Time // token -> expiry, for sweeping only

	clock clockwork.Clock
	stop  chan struct{}
	done  chan struct{}
}

// NewRegistry creates an empty token registry and starts a background
// goroutine that periodically removes entries past their recorded expiry.
// Call Stop() to clean up the goroutine.
func NewRegistry(clock clockwork.Clock) *Registry {
	r := &Registry{
		tokens: make(map[string]time.Time),
		clock:  clock,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Stop terminates the background sweep goroutine.
func (r *Registry) Stop() {
	close(r.stop)
	<-r.done
}

// Register adds a token to the set. Called by the issuer at issuance time.
func (r *Registry) Register(token string, expiresAt time.Time) {
	r.mu.Lock()
	r.tokens[token] = expiresAt
	r.mu.Unlock()
}

// Revoke removes a token from the set. Removing an unknown or already
// revoked token is a no-op: callers are never told whether the token
// existed.
func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	delete(r.tokens, token)
	r.mu.Unlock()
}

// Contains reports whether the token is currently a member of the set.
func (r *Registry) Contains(token string) bool {
	r.mu.RLock()
	_, ok := r.tokens[token]
	r.mu.RUnlock()
	return ok
}

// Len returns the number of registered tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

func (r *Registry) sweepLoop() {
	defer close(r.done)

	ticker := r.clock.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.sweep()
		case <-r.stop:
			return
		}
	}
}

// sweep removes entries whose recorded expiry has passed. An expired entry
// that survives until the next sweep is still rejected at validation time
// by the exp claim check.
func (r *Registry) sweep() {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, expiresAt := range r.tokens {
		if now.After(expiresAt) {
			delete(r.tokens, token)
		}
	}
}
