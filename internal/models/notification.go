package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification is a per-user inbox entry, optionally tied to an activity.
// Rows are only ever mutated to set ReadAt.
type Notification struct {
	ID         string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string     `gorm:"type:uuid;not null;index" json:"user_id"`
	ActivityID *string    `gorm:"type:uuid;index" json:"activity_id"`
	Type       string     `gorm:"type:varchar(50);not null" json:"type"`
	Text       string     `gorm:"type:varchar(255);not null" json:"text"`
	ReadAt     *time.Time `json:"read_at"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
