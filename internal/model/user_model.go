package model

import (
	"time"

	"github.com/google/uuid"
)

// User rows exist only to anchor document ownership; identities are
// anonymous and carry no profile.
type User struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (User) TableName() string {
	return "users"
}
