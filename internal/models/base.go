package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base is the base model for all entities.
// ID is a UUID string so the same value works as a MySQL key and a Mongo _id.
type Base struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey" bson:"_id"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"                    bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"                                 bson:"updatedAt"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	b.EnsureID()
	return nil
}

// EnsureID assigns a fresh UUID when the entity has none yet.
func (b *Base) EnsureID() {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
}

// Touch stamps CreatedAt (once) and UpdatedAt for stores without gorm's autotime.
func (b *Base) Touch(now time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}
