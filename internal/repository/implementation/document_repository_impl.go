package implementation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"notesync/internal/model"
	"notesync/internal/repository/contract"
	"notesync/internal/repository/specification"
)

type DocumentRepositoryImpl struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) contract.DocumentRepository {
	return &DocumentRepositoryImpl{db: db}
}

func applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *DocumentRepositoryImpl) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// MergeFields overlays the given keys onto the stored field map, leaving
// untouched keys intact.
func (r *DocumentRepositoryImpl) MergeFields(ctx context.Context, id uuid.UUID, fields datatypes.JSONMap) error {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return err
	}
	if doc.Fields == nil {
		doc.Fields = datatypes.JSONMap{}
	}
	for k, v := range fields {
		doc.Fields[k] = v
	}
	return r.db.WithContext(ctx).Save(&doc).Error
}

func (r *DocumentRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Document{}, "id = ?", id).Error
}

func (r *DocumentRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*model.Document, error) {
	var doc model.Document
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.Document, error) {
	var docs []*model.Document
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}
