package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityAssignment records that a staff member was assigned to an activity
// by a user at a point in time. Rows are never deleted; superseded assignments
// keep IsCurrent=false so the full history is preserved.
type ActivityAssignment struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"`
	ActivityID       string    `gorm:"type:uuid;not null;index" json:"activity_id"`
	StaffID          string    `gorm:"type:uuid;not null;index" json:"staff_id"`
	Staff            *Staff    `gorm:"foreignKey:StaffID" json:"staff,omitempty"`
	AssignedByUserID string    `gorm:"type:uuid;not null" json:"assigned_by_user_id"`
	AssignedAt       time.Time `gorm:"not null" json:"assigned_at"`
	IsCurrent        bool      `gorm:"not null;default:true;index" json:"is_current"`
}

func (a *ActivityAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	return nil
}
