package service

import (
	"context"
	"sync"

	"notesync/internal/dto"
	"notesync/internal/entity"
	"notesync/internal/pkg/logger"
	"notesync/internal/synccache"
)

// IEngineService is the surface the presentation layer talks to: it emits
// ViewState whenever snapshots or filter state change and accepts user
// intents. Rendering is someone else's job.
type IEngineService interface {
	Run(ctx context.Context) error
	States() <-chan dto.ViewState

	SelectNotebook(id string)
	SetSearchTerm(term string)
	SelectNote(note entity.Note)
	EditDraft(title, content string)
	AddNotebook(ctx context.Context, name string) error
	AddNote(ctx context.Context) error
	SaveActiveNote(ctx context.Context) error
	DeleteNote(ctx context.Context, id string) error

	Close()
}

type engineService struct {
	session  ISessionService
	view     IViewService
	mutation IMutationService
	log      logger.ILogger

	mu     sync.Mutex
	filter dto.FilterState

	// Memo of the last derivation, keyed on the notes cache identity, its
	// revision, and the filter. Cache identity matters: a reopened cache
	// restarts its revision counter.
	memoNotes   *synccache.Cache[entity.Note]
	memoRev     int64
	memoFilter  dto.FilterState
	memoDerived []entity.Note
	memoValid   bool

	states  chan dto.ViewState
	refresh chan struct{}
}

func NewEngineService(session ISessionService, view IViewService, mutation IMutationService, log logger.ILogger) IEngineService {
	return &engineService{
		session:  session,
		view:     view,
		mutation: mutation,
		log:      log,
		filter:   dto.FilterState{SelectedNotebookId: dto.FilterAll},
		states:   make(chan dto.ViewState, 1),
		refresh:  make(chan struct{}, 1),
	}
}

func (e *engineService) Run(ctx context.Context) error {
	if err := e.session.Start(ctx); err != nil {
		return err
	}

	go func() {
		for {
			// Re-acquired every iteration: a reopened subscription replaces
			// the cache, and closing a cache signals its watchers, so the
			// loop always lands on the live update channels.
			notebooks := e.session.Notebooks()
			notes := e.session.Notes()
			if notebooks == nil || notes == nil {
				return
			}
			select {
			case <-notebooks.Updates():
			case <-notes.Updates():
			case <-e.refresh:
			case <-ctx.Done():
				return
			}
			e.emit()
		}
	}()

	e.emit()
	return nil
}

func (e *engineService) States() <-chan dto.ViewState {
	return e.states
}

// SelectNotebook switches the notebook filter. The active note selection is
// reset; the search term is kept.
func (e *engineService) SelectNotebook(id string) {
	e.mu.Lock()
	e.filter.SelectedNotebookId = id
	e.mu.Unlock()
	e.mutation.ClearSelection()
	e.requestRefresh()
}

func (e *engineService) SetSearchTerm(term string) {
	e.mu.Lock()
	e.filter.SearchTerm = term
	e.mu.Unlock()
	e.requestRefresh()
}

func (e *engineService) SelectNote(note entity.Note) {
	e.mutation.SelectNote(note)
	e.requestRefresh()
}

func (e *engineService) EditDraft(title, content string) {
	e.mutation.EditDraft(title, content)
	e.requestRefresh()
}

func (e *engineService) AddNotebook(ctx context.Context, name string) error {
	err := e.mutation.CreateNotebook(ctx, name)
	e.requestRefresh()
	return err
}

func (e *engineService) AddNote(ctx context.Context) error {
	e.mu.Lock()
	filter := e.filter
	e.mu.Unlock()

	_, err := e.mutation.CreateNote(ctx, filter)
	e.requestRefresh()
	return err
}

func (e *engineService) SaveActiveNote(ctx context.Context) error {
	e.requestRefresh() // surface the saving flag
	err := e.mutation.SaveNote(ctx)
	e.requestRefresh()
	return err
}

func (e *engineService) DeleteNote(ctx context.Context, id string) error {
	err := e.mutation.DeleteNote(ctx, id)
	e.requestRefresh()
	return err
}

func (e *engineService) Close() {
	e.session.Close()
}

func (e *engineService) requestRefresh() {
	select {
	case e.refresh <- struct{}{}:
	default:
	}
}

func (e *engineService) emit() {
	notebooksCache := e.session.Notebooks()
	notesCache := e.session.Notes()
	if notebooksCache == nil || notesCache == nil {
		return
	}

	e.mu.Lock()
	filter := e.filter
	rev := notesCache.Revision()
	var derived []entity.Note
	if e.memoValid && e.memoNotes == notesCache && e.memoRev == rev && e.memoFilter == filter {
		derived = e.memoDerived
	} else {
		derived = e.view.Derive(notesCache.Snapshot(), filter)
		e.memoNotes = notesCache
		e.memoRev = rev
		e.memoFilter = filter
		e.memoDerived = derived
		e.memoValid = true
	}
	e.mu.Unlock()

	var userId string
	if ident, ok := e.session.Identity(); ok {
		userId = ident.UserId
	}

	var stateErr error
	if err := notebooksCache.Err(); err != nil {
		stateErr = err
	} else if err := notesCache.Err(); err != nil {
		stateErr = err
	}

	state := dto.ViewState{
		UserId:    userId,
		Notebooks: notebooksCache.Snapshot(),
		Notes:     derived,
		Filter:    filter,
		Draft:     e.mutation.ActiveDraft(),
		IsSaving:  e.mutation.IsSaving(),
		Err:       stateErr,
	}

	// Latest wins: an unconsumed older state is replaced, never queued.
	select {
	case e.states <- state:
	default:
		select {
		case <-e.states:
		default:
		}
		select {
		case e.states <- state:
		default:
		}
	}
}
