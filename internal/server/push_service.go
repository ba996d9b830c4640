package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"notesync/internal/pkg/logger"
	"notesync/internal/repository/contract"
	"notesync/internal/repository/specification"
	"notesync/pkg/remotestore"
)

// PushService materializes the full snapshot of a (user, collection) pair
// and hands it to the hub. Full replace: clients never see deltas.
type PushService struct {
	docs contract.DocumentRepository
	hub  *Hub
	log  logger.ILogger
}

func NewPushService(docs contract.DocumentRepository, hub *Hub, log logger.ILogger) *PushService {
	return &PushService{docs: docs, hub: hub, log: log}
}

func (p *PushService) Push(ctx context.Context, userId, collection string) error {
	uid, err := uuid.Parse(userId)
	if err != nil {
		return fmt.Errorf("push: bad user id %q: %w", userId, err)
	}

	records, err := p.docs.FindAll(ctx,
		specification.UserOwnedBy{UserID: uid},
		specification.ByCollection{Name: collection},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return fmt.Errorf("push: load %s for %s: %w", collection, userId, err)
	}

	documents := make([]remotestore.Document, 0, len(records))
	for _, rec := range records {
		documents = append(documents, remotestore.Document{
			Id:     rec.Id.String(),
			Fields: remotestore.Fields(rec.Fields),
		})
	}

	frame, err := json.Marshal(map[string]interface{}{
		"method": "snapshot",
		"params": map[string]interface{}{
			"collection": collection,
			"documents":  documents,
		},
	})
	if err != nil {
		return err
	}

	p.hub.SendSnapshot(userId, collection, frame)
	return nil
}
