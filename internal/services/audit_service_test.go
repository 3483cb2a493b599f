package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/altynaay/fieldops/internal/models"
	apperrors "github.com/altynaay/fieldops/pkg/errors"
)

func (e *testEnv) auditFor(t *testing.T, action, entityID string) *models.AuditLog {
	t.Helper()

	var row models.AuditLog
	require.NoError(t, e.db.
		Where("action = ? AND entity_id = ?", action, entityID).
		Order("created_at DESC").
		First(&row).Error)
	return &row
}

func TestUndoCreateDeletesActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dto := env.createActivity(t, CreateActivityInput{
		Date: dateString(0), ActivityType: "repair", CustomerName: "Acme",
	})
	entry := env.auditFor(t, "create", dto.ID)

	result, err := env.audit.Undo(ctx, entry.ID, env.admin)
	require.NoError(t, err)
	require.True(t, result.Undone)
	require.Equal(t, "create", result.Action)

	_, err = env.activities.Get(ctx, dto.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	compensating := env.auditFor(t, "undo_create", dto.ID)
	var details map[string]any
	requireDetails(t, compensating, &details)
	require.Equal(t, entry.ID, details["target_audit_id"])
}

func TestUndoDeleteRestoresActivityWithOriginalID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.createStaff(t, "Dana", false) // deactivated after assignment is still restored
	dto := env.createActivity(t, CreateActivityInput{
		Date:         dateString(-2),
		ActivityType: "repair",
		CustomerName: "Acme",
		Address:      "12 Main St",
		Priority:     7,
	})
	require.NoError(t, setAssignments(env.db, dto.ID, []string{staff.ID}, env.admin.ID, false))

	require.NoError(t, env.activities.Delete(ctx, dto.ID, env.admin))
	entry := env.auditFor(t, "delete", dto.ID)

	result, err := env.audit.Undo(ctx, entry.ID, env.manager)
	require.NoError(t, err)
	require.True(t, result.Undone)

	restored, err := env.activities.Get(ctx, dto.ID)
	require.NoError(t, err)
	require.Equal(t, dto.ID, restored.ID, "identity survives the round trip")
	require.Equal(t, "Acme", restored.CustomerName)
	require.Equal(t, "12 Main St", restored.Address)
	require.Equal(t, 7, restored.Priority)
	require.Len(t, restored.AssignedStaff, 1, "assignments restore regardless of staff active state")
}

func TestUndoDeleteConflictsWhenIDExists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dto := env.createActivity(t, CreateActivityInput{
		Date: dateString(0), ActivityType: "repair", CustomerName: "Acme",
	})
	require.NoError(t, env.activities.Delete(ctx, dto.ID, env.admin))
	entry := env.auditFor(t, "delete", dto.ID)

	// First undo restores the row; a second undo of the same entry collides.
	_, err := env.audit.Undo(ctx, entry.ID, env.admin)
	require.NoError(t, err)

	_, err = env.audit.Undo(ctx, entry.ID, env.admin)
	require.Error(t, err)
	require.Equal(t, 409, apperrors.FromError(err).StatusCode)
}

func TestUndoUpdateRestoresWholeSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.createStaff(t, "Dana", true)
	second := env.createStaff(t, "Eve", true)

	dto := env.createActivity(t, CreateActivityInput{
		Date:             dateString(0),
		ActivityType:     "repair",
		CustomerName:     "Acme",
		Priority:         2,
		AssignedStaffIDs: []string{first.ID},
	})

	_, err := env.activities.Update(ctx, dto.ID, UpdateActivityInput{
		CustomerName:     ptr("Globex"),
		Priority:         ptr(9),
		AssignedStaffIDs: []string{second.ID},
	}, env.admin)
	require.NoError(t, err)

	entry := env.auditFor(t, "update", dto.ID)
	_, err = env.audit.Undo(ctx, entry.ID, env.admin)
	require.NoError(t, err)

	restored, err := env.activities.Get(ctx, dto.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme", restored.CustomerName)
	require.Equal(t, 2, restored.Priority)
	require.Len(t, restored.AssignedStaff, 1)
	require.Equal(t, first.ID, restored.AssignedStaff[0].ID)

	compensating := env.auditFor(t, "undo_update", dto.ID)
	require.NotNil(t, compensating)
}

func TestUndoMarkDoneClearsCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dto := env.createActivity(t, CreateActivityInput{
		Date: dateString(0), ActivityType: "repair", CustomerName: "Acme",
	})
	_, err := env.activities.MarkDone(ctx, dto.ID, env.worker)
	require.NoError(t, err)

	entry := env.auditFor(t, "mark_done", dto.ID)
	_, err = env.audit.Undo(ctx, entry.ID, env.admin)
	require.NoError(t, err)

	restored, err := env.activities.Get(ctx, dto.ID)
	require.NoError(t, err)
	require.Equal(t, models.ActivityStatusPending, restored.Status)
	require.Nil(t, restored.DoneAt)
	require.Nil(t, restored.DoneByUserID)
}

func TestUndoRejectsNonUndoableEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dto := env.createActivity(t, CreateActivityInput{
		Date: dateString(0), ActivityType: "repair", CustomerName: "Acme", Priority: 1,
	})
	_, err := env.activities.Bulk(ctx, BulkActivityInput{
		Action:      BulkActionSetPriority,
		ActivityIDs: []string{dto.ID},
		Priority:    ptr(9),
	}, env.admin)
	require.NoError(t, err)

	entry := env.auditFor(t, "bulk_set_priority", dto.ID)
	_, err = env.audit.Undo(ctx, entry.ID, env.admin)
	require.Error(t, err)
	require.Equal(t, 400, apperrors.FromError(err).StatusCode)
}

func TestUndoUnknownEntryIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.audit.Undo(context.Background(), "no-such-entry", env.admin)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUndoMissingSnapshotIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dto := env.createActivity(t, CreateActivityInput{
		Date: dateString(0), ActivityType: "repair", CustomerName: "Acme",
	})

	// An update entry whose details blob lost its snapshot cannot be undone.
	require.NoError(t, env.audit.Record(env.db, &env.admin.ID, "update", "activity", dto.ID, map[string]any{
		"note": "imported from a legacy system",
	}))
	entry := env.auditFor(t, "update", dto.ID)

	_, err := env.audit.Undo(ctx, entry.ID, env.admin)
	require.Error(t, err)
	require.Equal(t, 400, apperrors.FromError(err).StatusCode)
}

func TestUndoRejectsMalformedSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dto := env.createActivity(t, CreateActivityInput{
		Date: dateString(0), ActivityType: "repair", CustomerName: "Acme",
	})
	original, err := env.activities.Get(ctx, dto.ID)
	require.NoError(t, err)

	// A snapshot whose date no longer parses must be rejected outright, not
	// partially applied with the current date kept.
	require.NoError(t, env.audit.Record(env.db, &env.admin.ID, "update", "activity", dto.ID, map[string]any{
		"before": map[string]any{
			"date":          "not-a-date",
			"activity_type": "installation",
			"customer_name": "Globex",
			"status":        "pending",
		},
	}))
	entry := env.auditFor(t, "update", dto.ID)

	_, err = env.audit.Undo(ctx, entry.ID, env.admin)
	require.Error(t, err)
	require.Equal(t, 400, apperrors.FromError(err).StatusCode)

	// The row is untouched.
	loaded, err := env.activities.Get(ctx, dto.ID)
	require.NoError(t, err)
	require.Equal(t, original.CustomerName, loaded.CustomerName)
	require.Equal(t, original.ActivityType, loaded.ActivityType)
	require.Equal(t, original.Date, loaded.Date)
}

func TestAuditListPaginatesNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.createActivity(t, CreateActivityInput{
			Date: dateString(0), ActivityType: "repair", CustomerName: "Acme",
		})
	}

	items, total, err := env.audit.List(ctx, 1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, items, 2)

	items, _, err = env.audit.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func requireDetails(t *testing.T, row *models.AuditLog, dest *map[string]any) {
	t.Helper()
	require.NotEmpty(t, row.Details)
	require.NoError(t, json.Unmarshal(row.Details, dest))
}
