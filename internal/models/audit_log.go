package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is an immutable, append-only record of a mutating operation.
// Details carries the before/after snapshots for undoable actions. Undo never
// rewrites history; it appends a fresh compensating row instead.
type AuditLog struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    *string        `gorm:"type:uuid;index" json:"user_id"`
	User      *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action    string         `gorm:"type:varchar(100);not null;index" json:"action"`
	Entity    string         `gorm:"type:varchar(80);not null;index" json:"entity"`
	EntityID  string         `gorm:"type:varchar(40);not null;index" json:"entity_id"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
