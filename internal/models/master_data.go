package models

// MasterData is one selectable value in a managed lookup list, e.g. the
// activity types or device names offered by form dropdowns. Values are
// unique within their category.
type MasterData struct {
	BaseModel

	Category string `gorm:"type:varchar(120);not null;uniqueIndex:idx_master_data_category_value" json:"category"`
	Value    string `gorm:"type:varchar(255);not null;uniqueIndex:idx_master_data_category_value" json:"value"`
	Active   bool   `gorm:"default:true" json:"active"`
}
