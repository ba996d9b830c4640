package main

import (
	"context"
	"log"
	"time"

	"github.com/fatih/color"

	"notesync/internal/config"
	"notesync/internal/dto"
	"notesync/internal/identity"
	"notesync/internal/pkg/logger"
	"notesync/internal/service"
	"notesync/pkg/remotestore"
	"notesync/pkg/remotestore/memstore"
	"notesync/pkg/remotestore/wsstore"
)

// Demo client: provisions an anonymous identity, runs the sync engine, and
// walks through a scripted notebook/note session while printing every view
// state. Without STORE_WS_URL it runs fully in process against the embedded
// store.
func main() {
	cfg := config.Load()
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var store remotestore.Store
	var provider identity.IProvider

	if cfg.App.StoreURL == "" {
		color.Yellow("No STORE_WS_URL configured, using embedded in-process store")
		store = memstore.New()
		provider = identity.NewAnonymous()
	} else {
		ws, err := wsstore.Dial(ctx, cfg.App.StoreURL, sysLogger)
		if err != nil {
			log.Fatalf("dial %s: %v", cfg.App.StoreURL, err)
		}
		defer ws.Close()
		store = ws
		provider = identity.NewRemote(ws)
	}

	session := service.NewSessionService(store, provider, sysLogger)
	mutation := service.NewMutationService(store, session, sysLogger)
	engine := service.NewEngineService(session, service.NewViewService(), mutation, sysLogger)

	if err := engine.Run(ctx); err != nil {
		log.Fatalf("engine start: %v", err)
	}
	defer engine.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case state := <-engine.States():
				printState(state)
			case <-ctx.Done():
				return
			}
		}
	}()

	script(ctx, engine)

	cancel()
	<-done
}

func script(ctx context.Context, engine service.IEngineService) {
	step := func(label string, fn func() error) {
		color.Cyan(">> %s", label)
		if err := fn(); err != nil {
			color.Red("   failed: %v", err)
		}
		time.Sleep(200 * time.Millisecond)
	}

	step("create notebook 'Ideas'", func() error {
		return engine.AddNotebook(ctx, "Ideas")
	})
	step("create a note", func() error {
		return engine.AddNote(ctx)
	})
	step("edit the draft", func() error {
		engine.EditDraft("Grocery list", "milk, eggs, coffee")
		return nil
	})
	step("save the note", func() error {
		return engine.SaveActiveNote(ctx)
	})
	step("search for 'coffee'", func() error {
		engine.SetSearchTerm("coffee")
		return nil
	})
	step("clear search, show uncategorized", func() error {
		engine.SetSearchTerm("")
		engine.SelectNotebook(dto.FilterUncategorized)
		return nil
	})
}

func printState(state dto.ViewState) {
	header := color.New(color.FgGreen, color.Bold)
	header.Printf("-- view state (user %s) --\n", state.UserId)

	if state.Err != nil {
		color.Red("   sync error: %v", state.Err)
	}
	color.White("   notebooks: %d, visible notes: %d (filter=%q search=%q)",
		len(state.Notebooks), len(state.Notes),
		state.Filter.SelectedNotebookId, state.Filter.SearchTerm)
	for _, nb := range state.Notebooks {
		color.White("   [notebook] %s", nb.Name)
	}
	for _, note := range state.Notes {
		color.White("   [note] %-20s %s", note.Title, note.UpdatedAtOrZero().Format(time.RFC3339))
	}
	if state.Draft != nil {
		color.Magenta("   draft: %q (saving=%v)", state.Draft.Title, state.IsSaving)
	}
}
