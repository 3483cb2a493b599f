package models

import "strings"

// Role names understood by the application. "user" is a legacy alias kept for
// databases migrated from older releases.
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleStaff      = "staff"
	RoleViewer     = "viewer"
	RoleLegacyUser = "user"
)

// User is an operator account that can log in and receive notifications.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Password string `gorm:"not null" json:"-"`
	Role     string `gorm:"type:varchar(20);not null;default:'staff'" json:"role"`
}

// NormalizeRole maps stored role values onto the canonical set. Unknown values
// degrade to viewer so a corrupted role never grants access.
func NormalizeRole(role string) string {
	normalized := strings.ToLower(strings.TrimSpace(role))
	if normalized == RoleLegacyUser {
		return RoleStaff
	}
	switch normalized {
	case RoleAdmin, RoleManager, RoleStaff, RoleViewer:
		return normalized
	}
	return RoleViewer
}

// IsManagerOrAdmin reports whether the user holds an elevated role.
func (u *User) IsManagerOrAdmin() bool {
	role := NormalizeRole(u.Role)
	return role == RoleAdmin || role == RoleManager
}
