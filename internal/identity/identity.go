// Package identity exposes the authenticated-user context the session
// derives its sender from. The session never caches the id across connects;
// it re-reads the provider so a re-login is picked up on the next connect.
package identity

import "sync"

// Provider reports the current user's identity. CurrentUserID returns
// ok=false while no user is authenticated.
type Provider interface {
	CurrentUserID() (string, bool)
}

// StaticProvider is a Provider backed by a settable value; the daemon feeds
// it from configuration and updates it if the operator re-authenticates.
type StaticProvider struct {
	mu sync.RWMutex
	id string
}

// NewStaticProvider creates a provider with an initial user id. An empty id
// means unauthenticated.
func NewStaticProvider(id string) *StaticProvider {
	return &StaticProvider{id: id}
}

func (p *StaticProvider) CurrentUserID() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.id, p.id != ""
}

// SetUserID replaces the current identity.
func (p *StaticProvider) SetUserID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
}
