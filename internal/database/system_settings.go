package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/altynaay/fieldops/internal/models"
)

// Setting keys consumed by the notification rule engine. Booleans are stored
// as the literal strings "true"/"false".
const (
	SettingRuleOverdueEnabled      = "notification_rule_overdue_enabled"
	SettingRuleUnassignedEnabled   = "notification_rule_unassigned_enabled"
	SettingRuleHighPriorityEnabled = "notification_rule_high_priority_enabled"
	SettingHighPriorityThreshold   = "notification_high_priority_threshold"
	SettingOverdueDays             = "notification_overdue_days"
)

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Take(&setting, "key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// GetSystemSettings loads the requested keys into a map; absent keys are omitted.
func GetSystemSettings(ctx context.Context, db *gorm.DB, keys ...string) (map[string]string, error) {
	if db == nil {
		return nil, fmt.Errorf("system settings: db is nil")
	}

	var rows []models.SystemSetting
	if err := db.WithContext(ctx).Where("key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("system settings: load: %w", err)
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return values, nil
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{
		Key:   key,
		Value: value,
	}

	if err := db.WithContext(ctx).
		Where("key = ?", key).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// SettingBool interprets a stored value as a boolean, falling back when absent.
func SettingBool(values map[string]string, key string, fallback bool) bool {
	raw, ok := values[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}

// SettingInt interprets a stored value as an integer, falling back on absence
// or parse failure.
func SettingInt(values map[string]string, key string, fallback int) int {
	raw, ok := values[key]
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return parsed
}
