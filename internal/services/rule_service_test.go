package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/altynaay/fieldops/internal/database"
	"github.com/altynaay/fieldops/internal/models"
)

func newRuleEngine(t *testing.T, env *testEnv) *RuleEngine {
	t.Helper()

	engine, err := NewRuleEngine(env.db, nil, RuleDefaults{HighPriorityThreshold: 5})
	require.NoError(t, err)
	return engine
}

func setSetting(t *testing.T, env *testEnv, key, value string) {
	t.Helper()
	require.NoError(t, database.UpsertSystemSetting(context.Background(), env.db, key, value))
}

func notificationsByType(t *testing.T, env *testEnv, ruleType string) []models.Notification {
	t.Helper()

	var rows []models.Notification
	require.NoError(t, env.db.Where("type = ?", ruleType).Find(&rows).Error)
	return rows
}

func TestRuleEngineNotifiesManagersAboutMatchingWork(t *testing.T) {
	env := newTestEnv(t)
	engine := newRuleEngine(t, env)
	ctx := context.Background()

	// Overdue, unassigned and high priority all at once.
	env.createActivity(t, CreateActivityInput{
		Date: dateString(-3), ActivityType: "repair", CustomerName: "Acme", Priority: 8,
	})
	// Clear the broadcast rows produced by Create so only rule output remains.
	require.NoError(t, env.db.Where("1 = 1").Delete(&models.Notification{}).Error)

	created, err := engine.RunOnce(ctx)
	require.NoError(t, err)

	// Three rules, two elevated recipients (admin + manager).
	require.Equal(t, 6, created)

	for _, ruleType := range []string{RuleTypeOverdue, RuleTypeUnassigned, RuleTypeHighPriority} {
		rows := notificationsByType(t, env, ruleType)
		require.Len(t, rows, 2, ruleType)

		recipients := map[string]bool{}
		for _, row := range rows {
			recipients[row.UserID] = true
			require.NotNil(t, row.ActivityID)
		}
		require.True(t, recipients[env.admin.ID])
		require.True(t, recipients[env.manager.ID])
		require.False(t, recipients[env.worker.ID], "staff accounts are not rule recipients")
	}
}

func TestRuleEngineDeduplicatesWithinTheSameDay(t *testing.T) {
	env := newTestEnv(t)
	engine := newRuleEngine(t, env)
	ctx := context.Background()

	env.createActivity(t, CreateActivityInput{
		Date: dateString(0), ActivityType: "repair", CustomerName: "Acme", Priority: 9,
	})

	first, err := engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Greater(t, first, 0)

	second, err := engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, second, "repeat evaluation on the same day creates nothing")
}

func TestRuleEngineOverdueBoundaryIsStrict(t *testing.T) {
	env := newTestEnv(t)
	engine := newRuleEngine(t, env)
	ctx := context.Background()

	setSetting(t, env, database.SettingRuleUnassignedEnabled, "false")
	setSetting(t, env, database.SettingRuleHighPriorityEnabled, "false")
	setSetting(t, env, database.SettingOverdueDays, "2")

	// Exactly at the boundary: today-2 is not overdue, today-3 is.
	env.createActivity(t, CreateActivityInput{
		Date: dateString(-2), ActivityType: "repair", CustomerName: "Boundary",
	})
	overdue := env.createActivity(t, CreateActivityInput{
		Date: dateString(-3), ActivityType: "repair", CustomerName: "Late",
	})

	created, err := engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, created, "one overdue activity, two recipients")

	rows := notificationsByType(t, env, RuleTypeOverdue)
	for _, row := range rows {
		require.Equal(t, overdue.ID, *row.ActivityID)
	}
}

func TestRuleEngineHonoursThresholdSetting(t *testing.T) {
	env := newTestEnv(t)
	engine := newRuleEngine(t, env)
	ctx := context.Background()

	setSetting(t, env, database.SettingRuleOverdueEnabled, "false")
	setSetting(t, env, database.SettingRuleUnassignedEnabled, "false")
	setSetting(t, env, database.SettingHighPriorityThreshold, "8")

	staff := env.createStaff(t, "Dana", true)
	env.createActivity(t, CreateActivityInput{
		Date: dateString(0), ActivityType: "repair", CustomerName: "Mid", Priority: 7,
		AssignedStaffIDs: []string{staff.ID},
	})
	high := env.createActivity(t, CreateActivityInput{
		Date: dateString(0), ActivityType: "repair", CustomerName: "High", Priority: 8,
		AssignedStaffIDs: []string{staff.ID},
	})

	created, err := engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, created, "only the activity at or above the threshold matches")

	rows := notificationsByType(t, env, RuleTypeHighPriority)
	for _, row := range rows {
		require.Equal(t, high.ID, *row.ActivityID)
	}
}

func TestRuleEngineSkipsDoneActivitiesAndDisabledRules(t *testing.T) {
	env := newTestEnv(t)
	engine := newRuleEngine(t, env)
	ctx := context.Background()

	dto := env.createActivity(t, CreateActivityInput{
		Date: dateString(-5), ActivityType: "repair", CustomerName: "Acme", Priority: 9,
	})
	_, err := env.activities.MarkDone(ctx, dto.ID, env.admin)
	require.NoError(t, err)

	created, err := engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, created, "finished work never triggers rules")

	setSetting(t, env, database.SettingRuleOverdueEnabled, "false")
	setSetting(t, env, database.SettingRuleUnassignedEnabled, "false")
	setSetting(t, env, database.SettingRuleHighPriorityEnabled, "false")

	env.createActivity(t, CreateActivityInput{
		Date: dateString(-5), ActivityType: "repair", CustomerName: "Globex", Priority: 9,
	})
	created, err = engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, created, "all rules disabled is a no-op")
}

func TestRuleEngineFallsBackToAdminsAndSkipsWithoutRecipients(t *testing.T) {
	env := newTestEnv(t)
	engine := newRuleEngine(t, env)
	ctx := context.Background()

	env.createActivity(t, CreateActivityInput{
		Date: dateString(0), ActivityType: "repair", CustomerName: "Acme", Priority: 9,
	})
	require.NoError(t, env.db.Where("1 = 1").Delete(&models.Notification{}).Error)

	// Demote the manager: admin remains the only elevated account.
	require.NoError(t, env.db.Model(&models.User{}).
		Where("id = ?", env.manager.ID).
		Update("role", models.RoleStaff).Error)

	created, err := engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, created, "unassigned + high priority for the single admin")

	// No elevated accounts at all: the run is a silent no-op.
	require.NoError(t, env.db.Where("1 = 1").Delete(&models.Notification{}).Error)
	require.NoError(t, env.db.Model(&models.User{}).
		Where("id = ?", env.admin.ID).
		Update("role", models.RoleViewer).Error)

	created, err = engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, created)
}

func TestRuleEnginePinnedClock(t *testing.T) {
	env := newTestEnv(t)
	engine := newRuleEngine(t, env)
	ctx := context.Background()

	setSetting(t, env, database.SettingRuleUnassignedEnabled, "false")
	setSetting(t, env, database.SettingRuleHighPriorityEnabled, "false")

	env.createActivity(t, CreateActivityInput{
		Date: dateString(-1), ActivityType: "repair", CustomerName: "Acme",
	})
	require.NoError(t, env.db.Where("1 = 1").Delete(&models.Notification{}).Error)

	// With the clock wound back a day the activity is due today, not overdue.
	engine.now = func() time.Time { return time.Now().UTC().AddDate(0, 0, -1) }

	created, err := engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, created)
}
