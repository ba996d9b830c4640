package contract

import (
	"context"

	"notesync/internal/model"
	"notesync/internal/repository/specification"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*model.User, error)
}
