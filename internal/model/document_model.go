package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Document is a schemaless record scoped to (user, collection). The engine's
// notes and notebooks both live here; their shape is entirely in Fields.
type Document struct {
	Id         uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId     uuid.UUID         `gorm:"type:uuid;not null;index:idx_documents_scope"`
	Collection string            `gorm:"type:varchar(64);not null;index:idx_documents_scope"`
	Fields     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime"`
}

func (Document) TableName() string {
	return "documents"
}
