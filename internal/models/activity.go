package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity statuses. An activity is either waiting for work or finished.
const (
	ActivityStatusPending = "pending"
	ActivityStatusDone    = "done"
)

// Activity is a trackable field-service work item.
type Activity struct {
	BaseModel

	CreatedByUserID string     `gorm:"type:uuid;not null" json:"created_by_user_id"`
	DoneByUserID    *string    `gorm:"type:uuid" json:"done_by_user_id"`
	DoneAt          *time.Time `json:"done_at"`

	Date         time.Time `gorm:"type:date;not null;index" json:"date"`
	ActivityType string    `gorm:"type:varchar(120);not null;index" json:"activity_type"`
	CustomerName string    `gorm:"type:varchar(120);not null;index" json:"customer_name"`

	// Address is authoritative; Location is retained as a legacy fallback for
	// rows imported before addresses were collected.
	Location string `gorm:"type:varchar(120);index" json:"location"`
	Address  string `gorm:"type:varchar(255)" json:"address"`

	Status     string `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Priority   int    `gorm:"not null;default:0;index" json:"priority"`
	ReportText string `gorm:"type:text" json:"report_text"`
	DeviceInfo string `gorm:"type:varchar(255)" json:"device_info"`

	// ExtraFields is an open key/value map; user defined keys are preserved verbatim.
	ExtraFields datatypes.JSON `json:"extra_fields"`

	Assignments []ActivityAssignment `gorm:"foreignKey:ActivityID;constraint:OnDelete:CASCADE" json:"assignments,omitempty"`
}

// DisplayLocation resolves the location shown to users: address wins, the
// legacy location is a fallback, and "-" marks rows with neither.
func (a *Activity) DisplayLocation() string {
	if a.Address != "" {
		return a.Address
	}
	if a.Location != "" {
		return a.Location
	}
	return "-"
}

// CurrentAssignments returns the live subset of the assignment history.
func (a *Activity) CurrentAssignments() []ActivityAssignment {
	var current []ActivityAssignment
	for _, assignment := range a.Assignments {
		if assignment.IsCurrent {
			current = append(current, assignment)
		}
	}
	return current
}
