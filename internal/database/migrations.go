package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/altynaay/fieldops/internal/models"
	"github.com/altynaay/fieldops/pkg/crypto"
)

// Default credentials seeded on first start. The password must be rotated by
// the operator; it only exists so a fresh install is reachable.
const (
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "Admin@12345"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Staff{},
		&models.Activity{},
		&models.ActivityAssignment{},
		&models.Notification{},
		&models.AuditLog{},
		&models.SystemSetting{},
		&models.MasterData{},
	)
}

// SeedData ensures a default admin account and notification rule settings exist.
func SeedData(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		hash, err := crypto.HashPassword(DefaultAdminPassword)
		if err != nil {
			return err
		}
		admin := models.User{
			Username: DefaultAdminUsername,
			Password: hash,
			Role:     models.RoleAdmin,
		}
		if err := db.Create(&admin).Error; err != nil {
			return err
		}
	}

	defaults := map[string]string{
		SettingRuleOverdueEnabled:      "true",
		SettingRuleUnassignedEnabled:   "true",
		SettingRuleHighPriorityEnabled: "true",
	}
	for key, value := range defaults {
		record := models.SystemSetting{Key: key, Value: value}
		if err := db.Where("key = ?", key).Attrs(models.SystemSetting{Value: value}).FirstOrCreate(&record).Error; err != nil {
			return err
		}
	}

	return nil
}
