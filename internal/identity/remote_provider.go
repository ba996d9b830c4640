package identity

import (
	"context"
	"sync"

	"notesync/internal/entity"
	"notesync/pkg/remotestore/wsstore"
)

// RemoteProvider provisions anonymous identities against the store server
// over the already-dialed websocket connection.
type RemoteProvider struct {
	store   *wsstore.Store
	mu      sync.Mutex
	current *entity.Identity
	changes chan entity.Identity
}

func NewRemote(store *wsstore.Store) *RemoteProvider {
	return &RemoteProvider{store: store, changes: make(chan entity.Identity, 1)}
}

// NewRemoteWithToken resumes an existing identity by authenticating the
// stored token immediately. A rejected token fails the provider outright.
func NewRemoteWithToken(ctx context.Context, store *wsstore.Store, token string) (*RemoteProvider, error) {
	p := NewRemote(store)
	userId, err := store.Authenticate(ctx, token)
	if err != nil {
		return nil, &AuthError{Cause: err}
	}
	p.current = &entity.Identity{UserId: userId, Token: token}
	return p, nil
}

func (p *RemoteProvider) Current() (entity.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return entity.Identity{}, false
	}
	return *p.current, true
}

func (p *RemoteProvider) ProvisionAnonymous(ctx context.Context) (entity.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		return *p.current, nil
	}

	userId, token, err := p.store.Provision(ctx)
	if err != nil {
		return entity.Identity{}, &AuthError{Cause: err}
	}

	ident := entity.Identity{UserId: userId, Token: token}
	p.current = &ident
	select {
	case p.changes <- ident:
	default:
	}
	return ident, nil
}

func (p *RemoteProvider) Changes() <-chan entity.Identity {
	return p.changes
}
