// Package identity resolves the opaque per-session user identity the sync
// engine scopes everything to.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"notesync/internal/entity"
)

// AuthError marks a failed identity resolution. Terminal for the session.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("identity resolution failed: %v", e.Cause)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

type IProvider interface {
	// Current returns the already-resolved identity for this session, if any.
	Current() (entity.Identity, bool)

	// ProvisionAnonymous obtains a fresh anonymous identity.
	ProvisionAnonymous(ctx context.Context) (entity.Identity, error)

	// Changes notifies on identity transitions.
	Changes() <-chan entity.Identity
}

// StaticProvider always resolves to a fixed identity. Used by the embedded
// store mode and tests.
type StaticProvider struct {
	ident   entity.Identity
	changes chan entity.Identity
}

func NewStatic(ident entity.Identity) *StaticProvider {
	return &StaticProvider{ident: ident, changes: make(chan entity.Identity)}
}

func (p *StaticProvider) Current() (entity.Identity, bool) {
	return p.ident, true
}

func (p *StaticProvider) ProvisionAnonymous(ctx context.Context) (entity.Identity, error) {
	return p.ident, nil
}

func (p *StaticProvider) Changes() <-chan entity.Identity {
	return p.changes
}

// AnonymousProvider has no current identity and mints a random one on
// provisioning, without any backing server.
type AnonymousProvider struct {
	mu      sync.Mutex
	current *entity.Identity
	changes chan entity.Identity
}

func NewAnonymous() *AnonymousProvider {
	return &AnonymousProvider{changes: make(chan entity.Identity, 1)}
}

func (p *AnonymousProvider) Current() (entity.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return entity.Identity{}, false
	}
	return *p.current, true
}

func (p *AnonymousProvider) ProvisionAnonymous(ctx context.Context) (entity.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		ident := entity.Identity{UserId: uuid.NewString()}
		p.current = &ident
		select {
		case p.changes <- ident:
		default:
		}
	}
	return *p.current, nil
}

func (p *AnonymousProvider) Changes() <-chan entity.Identity {
	return p.changes
}
