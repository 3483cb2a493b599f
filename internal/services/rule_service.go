package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/altynaay/fieldops/internal/database"
	"github.com/altynaay/fieldops/internal/models"
	"github.com/altynaay/fieldops/internal/notifications"
	"github.com/altynaay/fieldops/pkg/logger"
	"github.com/altynaay/fieldops/pkg/metrics"
)

// Notification types produced by the rule engine. One type per rule; the type
// participates in the same-day dedup key.
const (
	RuleTypeOverdue      = "rule_overdue"
	RuleTypeUnassigned   = "rule_unassigned"
	RuleTypeHighPriority = "rule_high_priority"
)

// RuleDefaults supplies fallback values when the corresponding system
// settings are absent.
type RuleDefaults struct {
	HighPriorityThreshold int
	OverdueDays           int
}

// RuleEngine periodically inspects pending activities and notifies managers
// about overdue, unassigned and high-priority work. A given (recipient,
// activity, rule) triple is notified at most once per calendar day.
type RuleEngine struct {
	db       *gorm.DB
	hub      *notifications.Hub
	defaults RuleDefaults
	log      *zap.Logger

	// now is swappable in tests to pin the evaluation day.
	now func() time.Time
}

// NewRuleEngine constructs a RuleEngine. The hub is optional; without it the
// engine persists notifications but does not push them.
func NewRuleEngine(db *gorm.DB, hub *notifications.Hub, defaults RuleDefaults) (*RuleEngine, error) {
	if db == nil {
		return nil, errors.New("rule engine: db is required")
	}
	if defaults.HighPriorityThreshold <= 0 {
		defaults.HighPriorityThreshold = 5
	}
	if defaults.OverdueDays < 0 {
		defaults.OverdueDays = 0
	}
	return &RuleEngine{
		db:       db,
		hub:      hub,
		defaults: defaults,
		log:      logger.WithModule("rules"),
		now:      time.Now,
	}, nil
}

// pendingRule matches one rule against one activity.
type pendingRule struct {
	ruleType string
	text     string
}

// RunOnce evaluates every enabled rule against every pending activity and
// returns the number of notifications created. All rows commit in one
// transaction before any live push goes out.
func (e *RuleEngine) RunOnce(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)

	settings, err := database.GetSystemSettings(ctx, e.db,
		database.SettingRuleOverdueEnabled,
		database.SettingRuleUnassignedEnabled,
		database.SettingRuleHighPriorityEnabled,
		database.SettingHighPriorityThreshold,
		database.SettingOverdueDays,
	)
	if err != nil {
		return 0, fmt.Errorf("rule engine: load settings: %w", err)
	}

	overdueEnabled := database.SettingBool(settings, database.SettingRuleOverdueEnabled, true)
	unassignedEnabled := database.SettingBool(settings, database.SettingRuleUnassignedEnabled, true)
	highPriorityEnabled := database.SettingBool(settings, database.SettingRuleHighPriorityEnabled, true)
	if !overdueEnabled && !unassignedEnabled && !highPriorityEnabled {
		return 0, nil
	}

	threshold := database.SettingInt(settings, database.SettingHighPriorityThreshold, e.defaults.HighPriorityThreshold)
	overdueDays := database.SettingInt(settings, database.SettingOverdueDays, e.defaults.OverdueDays)

	recipients, err := e.loadRecipients(ctx)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		e.log.Debug("rule run skipped: no recipients")
		return 0, nil
	}

	var activities []models.Activity
	if err := e.db.WithContext(ctx).
		Preload("Assignments").
		Where("status = ?", models.ActivityStatusPending).
		Find(&activities).Error; err != nil {
		return 0, fmt.Errorf("rule engine: load activities: %w", err)
	}

	now := e.now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	overdueBefore := todayStart.AddDate(0, 0, -overdueDays)

	var created []models.Notification
	seen := make(map[string]struct{})

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range activities {
			activity := &activities[i]

			var matches []pendingRule
			if overdueEnabled && activity.Date.Before(overdueBefore) {
				matches = append(matches, pendingRule{
					ruleType: RuleTypeOverdue,
					text: fmt.Sprintf("Activity for %s (%s) is overdue since %s",
						activity.CustomerName, activity.DisplayLocation(), activity.Date.Format(dateLayout)),
				})
			}
			if unassignedEnabled && len(activity.CurrentAssignments()) == 0 {
				matches = append(matches, pendingRule{
					ruleType: RuleTypeUnassigned,
					text: fmt.Sprintf("Activity for %s (%s) has no assigned staff",
						activity.CustomerName, activity.DisplayLocation()),
				})
			}
			if highPriorityEnabled && activity.Priority >= threshold {
				matches = append(matches, pendingRule{
					ruleType: RuleTypeHighPriority,
					text: fmt.Sprintf("Activity for %s (%s) has high priority %d",
						activity.CustomerName, activity.DisplayLocation(), activity.Priority),
				})
			}
			if len(matches) == 0 {
				continue
			}

			for _, match := range matches {
				for _, recipient := range recipients {
					dedupKey := recipient.ID + "|" + activity.ID + "|" + match.ruleType
					if _, dup := seen[dedupKey]; dup {
						continue
					}

					var count int64
					if err := tx.Model(&models.Notification{}).
						Where("user_id = ? AND activity_id = ? AND type = ? AND created_at >= ?",
							recipient.ID, activity.ID, match.ruleType, todayStart).
						Count(&count).Error; err != nil {
						return fmt.Errorf("rule engine: dedup check: %w", err)
					}
					if count > 0 {
						seen[dedupKey] = struct{}{}
						continue
					}

					activityID := activity.ID
					note := models.Notification{
						UserID:     recipient.ID,
						ActivityID: &activityID,
						Type:       match.ruleType,
						Text:       match.text,
					}
					if err := tx.Create(&note).Error; err != nil {
						return fmt.Errorf("rule engine: create notification: %w", err)
					}
					seen[dedupKey] = struct{}{}
					created = append(created, note)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, note := range created {
		metrics.RuleNotifications.WithLabelValues(note.Type).Inc()
		if e.hub != nil {
			e.hub.Push(note.UserID, notifications.Event{
				Type:       note.Type,
				Text:       note.Text,
				ActivityID: note.ActivityID,
				CreatedAt:  note.CreatedAt,
			})
		}
	}

	if len(created) > 0 {
		e.log.Info("rule run produced notifications", zap.Int("created", len(created)))
	}
	return len(created), nil
}

// loadRecipients resolves who receives rule notifications: managers and
// admins, or just admins when no manager exists.
func (e *RuleEngine) loadRecipients(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := e.db.WithContext(ctx).
		Where("role IN ?", []string{models.RoleAdmin, models.RoleManager}).
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("rule engine: load recipients: %w", err)
	}
	if len(users) > 0 {
		return users, nil
	}

	if err := e.db.WithContext(ctx).
		Where("role = ?", models.RoleAdmin).
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("rule engine: load admin fallback: %w", err)
	}
	return users, nil
}
