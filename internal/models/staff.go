package models

// Staff is a field worker that activities are assigned to. Staff members do
// not log in; they are referenced by assignments only.
type Staff struct {
	BaseModel

	Name   string `gorm:"type:varchar(120);not null;index" json:"name"`
	Phone  string `gorm:"type:varchar(50)" json:"phone"`
	Active bool   `gorm:"default:true" json:"active"`
}
