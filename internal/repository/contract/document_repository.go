package contract

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"notesync/internal/model"
	"notesync/internal/repository/specification"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	MergeFields(ctx context.Context, id uuid.UUID, fields datatypes.JSONMap) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*model.Document, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.Document, error)
}
