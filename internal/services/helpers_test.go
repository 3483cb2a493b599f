package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/altynaay/fieldops/internal/database/testutil"
	"github.com/altynaay/fieldops/internal/models"
	"github.com/altynaay/fieldops/pkg/crypto"
)

type testEnv struct {
	db         *gorm.DB
	users      *UserService
	staff      *StaffService
	activities *ActivityService
	audit      *AuditService
	inbox      *NotificationService

	admin   *models.User
	manager *models.User
	worker  *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	inbox, err := NewNotificationService(db, nil)
	require.NoError(t, err)
	audit, err := NewAuditService(db, inbox)
	require.NoError(t, err)
	activities, err := NewActivityService(db, audit, inbox)
	require.NoError(t, err)
	users, err := NewUserService(db)
	require.NoError(t, err)
	staff, err := NewStaffService(db)
	require.NoError(t, err)

	env := &testEnv{
		db:         db,
		users:      users,
		staff:      staff,
		activities: activities,
		audit:      audit,
		inbox:      inbox,
	}
	env.admin = env.createUser(t, "alice", models.RoleAdmin)
	env.manager = env.createUser(t, "bob", models.RoleManager)
	env.worker = env.createUser(t, "carol", models.RoleStaff)
	return env
}

func (e *testEnv) createUser(t *testing.T, username, role string) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword("Secret@12345")
	require.NoError(t, err)

	user := models.User{Username: username, Password: hash, Role: role}
	require.NoError(t, e.db.Create(&user).Error)
	return &user
}

func (e *testEnv) createStaff(t *testing.T, name string, active bool) *models.Staff {
	t.Helper()

	member := models.Staff{Name: name, Active: active}
	require.NoError(t, e.db.Create(&member).Error)
	return &member
}

func (e *testEnv) createActivity(t *testing.T, input CreateActivityInput) *ActivityDTO {
	t.Helper()

	dto, err := e.activities.Create(context.Background(), input, e.admin)
	require.NoError(t, err)
	return dto
}

func (e *testEnv) lastAudit(t *testing.T) *AuditLogDTO {
	t.Helper()

	items, _, err := e.audit.List(context.Background(), 1, 1)
	require.NoError(t, err)
	require.NotEmpty(t, items)
	return &items[0]
}

func dateString(daysFromToday int) string {
	return time.Now().UTC().AddDate(0, 0, daysFromToday).Format(dateLayout)
}
