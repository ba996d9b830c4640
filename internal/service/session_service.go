package service

import (
	"context"
	"fmt"
	"sync"

	"notesync/internal/entity"
	"notesync/internal/identity"
	"notesync/internal/mapper"
	"notesync/internal/pkg/logger"
	"notesync/internal/synccache"
	"notesync/pkg/remotestore"
)

type SessionState int

const (
	StateUnresolved SessionState = iota
	StateResolving
	StateReady
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unresolved"
	}
}

// ISessionService owns the identity lifecycle and the two collection caches
// scoped to it. Failed identity resolution is terminal for the session;
// teardown closes both caches before leaving Ready.
type ISessionService interface {
	Start(ctx context.Context) error
	State() SessionState
	Identity() (entity.Identity, bool)
	Notebooks() *synccache.Cache[entity.Notebook]
	Notes() *synccache.Cache[entity.Note]
	ReopenNotebooks(ctx context.Context) error
	ReopenNotes(ctx context.Context) error
	Close()
}

type sessionService struct {
	store    remotestore.Store
	provider identity.IProvider
	log      logger.ILogger

	mu        sync.Mutex
	state     SessionState
	ident     entity.Identity
	notebooks *synccache.Cache[entity.Notebook]
	notes     *synccache.Cache[entity.Note]
}

func NewSessionService(store remotestore.Store, provider identity.IProvider, log logger.ILogger) ISessionService {
	return &sessionService{
		store:    store,
		provider: provider,
		log:      log,
		state:    StateUnresolved,
	}
}

func (s *sessionService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReady {
		return nil
	}
	if s.state == StateFailed {
		return &identity.AuthError{Cause: fmt.Errorf("session already failed")}
	}
	s.state = StateResolving

	ident, ok := s.provider.Current()
	if !ok {
		var err error
		ident, err = s.provider.ProvisionAnonymous(ctx)
		if err != nil {
			s.state = StateFailed
			s.log.Error("Session", "Anonymous provisioning failed", map[string]interface{}{"error": err.Error()})
			if _, isAuth := err.(*identity.AuthError); isAuth {
				return err
			}
			return &identity.AuthError{Cause: err}
		}
	}
	s.ident = ident

	notebooks, err := s.openNotebooks(ctx)
	if err != nil {
		s.state = StateUnresolved
		return err
	}
	notes, err := s.openNotes(ctx)
	if err != nil {
		notebooks.Close()
		s.state = StateUnresolved
		return err
	}

	s.notebooks = notebooks
	s.notes = notes
	s.state = StateReady
	s.log.Info("Session", "Session ready", map[string]interface{}{"user_id": ident.UserId})
	return nil
}

func (s *sessionService) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *sessionService) Identity() (entity.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return entity.Identity{}, false
	}
	return s.ident, true
}

func (s *sessionService) Notebooks() *synccache.Cache[entity.Notebook] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notebooks
}

func (s *sessionService) Notes() *synccache.Cache[entity.Note] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes
}

// ReopenNotebooks retries a failed notebooks subscription. User-initiated;
// nothing retries automatically.
func (s *sessionService) ReopenNotebooks(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return fmt.Errorf("session not ready: %s", s.state)
	}
	s.notebooks.Close()
	notebooks, err := s.openNotebooks(ctx)
	if err != nil {
		return err
	}
	s.notebooks = notebooks
	return nil
}

// ReopenNotes retries a failed notes subscription.
func (s *sessionService) ReopenNotes(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return fmt.Errorf("session not ready: %s", s.state)
	}
	s.notes.Close()
	notes, err := s.openNotes(ctx)
	if err != nil {
		return err
	}
	s.notes = notes
	return nil
}

// Close tears the session down: both caches are closed before the state
// leaves Ready so no subscription outlives its identity.
func (s *sessionService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notebooks != nil {
		s.notebooks.Close()
		s.notebooks = nil
	}
	if s.notes != nil {
		s.notes.Close()
		s.notes = nil
	}
	if s.state == StateReady {
		s.state = StateUnresolved
	}
}

func (s *sessionService) openNotebooks(ctx context.Context) (*synccache.Cache[entity.Notebook], error) {
	path := remotestore.CollectionPath{UserId: s.ident.UserId, Collection: remotestore.CollectionNotebooks}
	return synccache.Open(ctx, s.store, path, mapper.NotebookFromDocument, entity.NotebookLess, s.log)
}

func (s *sessionService) openNotes(ctx context.Context) (*synccache.Cache[entity.Note], error) {
	path := remotestore.CollectionPath{UserId: s.ident.UserId, Collection: remotestore.CollectionNotes}
	return synccache.Open(ctx, s.store, path, mapper.NoteFromDocument, entity.NoteLess, s.log)
}
