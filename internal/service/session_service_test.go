package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesync/internal/entity"
	"notesync/internal/identity"
	"notesync/internal/pkg/logger"
	"notesync/pkg/remotestore/memstore"
)

type failingProvider struct {
	err error
}

func (p *failingProvider) Current() (entity.Identity, bool) {
	return entity.Identity{}, false
}

func (p *failingProvider) ProvisionAnonymous(ctx context.Context) (entity.Identity, error) {
	return entity.Identity{}, p.err
}

func (p *failingProvider) Changes() <-chan entity.Identity {
	return nil
}

func TestSessionStartResolvesExistingIdentity(t *testing.T) {
	store := newRecordingStore(memstore.New())
	provider := identity.NewStatic(entity.Identity{UserId: "user-9"})
	session := NewSessionService(store, provider, logger.NewNopLogger())

	require.NoError(t, session.Start(context.Background()))
	defer session.Close()

	assert.Equal(t, StateReady, session.State())
	ident, ok := session.Identity()
	require.True(t, ok)
	assert.Equal(t, "user-9", ident.UserId)
	assert.NotNil(t, session.Notebooks())
	assert.NotNil(t, session.Notes())
	assert.Equal(t, "notebooks", session.Notebooks().Collection())
	assert.Equal(t, "notes", session.Notes().Collection())
}

func TestSessionStartProvisionsAnonymousIdentity(t *testing.T) {
	store := newRecordingStore(memstore.New())
	session := NewSessionService(store, identity.NewAnonymous(), logger.NewNopLogger())

	require.NoError(t, session.Start(context.Background()))
	defer session.Close()

	ident, ok := session.Identity()
	require.True(t, ok)
	assert.NotEmpty(t, ident.UserId)
}

func TestSessionStartIsIdempotentWhenReady(t *testing.T) {
	store := newRecordingStore(memstore.New())
	session := NewSessionService(store, identity.NewAnonymous(), logger.NewNopLogger())

	require.NoError(t, session.Start(context.Background()))
	defer session.Close()

	first := session.Notes()
	require.NoError(t, session.Start(context.Background()))
	assert.Same(t, first, session.Notes())
}

func TestSessionProvisioningFailureIsTerminal(t *testing.T) {
	store := newRecordingStore(memstore.New())
	session := NewSessionService(store, &failingProvider{err: errors.New("server unreachable")}, logger.NewNopLogger())

	err := session.Start(context.Background())

	var authErr *identity.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, StateFailed, session.State())

	_, ok := session.Identity()
	assert.False(t, ok)

	// A failed session stays failed: no silent recovery on re-start.
	err = session.Start(context.Background())
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, StateFailed, session.State())
}

func TestSessionSubscribeFailureIsRetriable(t *testing.T) {
	store := newRecordingStore(memstore.New())
	store.failSubscribes(errors.New("connection reset"))
	session := NewSessionService(store, identity.NewAnonymous(), logger.NewNopLogger())

	err := session.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateUnresolved, session.State())

	// Unlike an identity failure, a subscription failure may be retried.
	store.failSubscribes(nil)
	require.NoError(t, session.Start(context.Background()))
	defer session.Close()
	assert.Equal(t, StateReady, session.State())
}

func TestSessionCloseTearsDownCaches(t *testing.T) {
	store := newRecordingStore(memstore.New())
	session := NewSessionService(store, identity.NewAnonymous(), logger.NewNopLogger())
	require.NoError(t, session.Start(context.Background()))

	session.Close()

	assert.Equal(t, StateUnresolved, session.State())
	assert.Nil(t, session.Notebooks())
	assert.Nil(t, session.Notes())
	_, ok := session.Identity()
	assert.False(t, ok)
}

func TestSessionReopenNotesReplacesCache(t *testing.T) {
	store := newRecordingStore(memstore.New())
	session := NewSessionService(store, identity.NewAnonymous(), logger.NewNopLogger())
	require.NoError(t, session.Start(context.Background()))
	defer session.Close()

	before := session.Notes()
	require.NoError(t, session.ReopenNotes(context.Background()))
	assert.NotSame(t, before, session.Notes())
}

func TestSessionReopenRequiresReadyState(t *testing.T) {
	store := newRecordingStore(memstore.New())
	session := NewSessionService(store, identity.NewAnonymous(), logger.NewNopLogger())

	assert.Error(t, session.ReopenNotes(context.Background()))
	assert.Error(t, session.ReopenNotebooks(context.Background()))
}
