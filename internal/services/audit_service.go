package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/altynaay/fieldops/internal/models"
	apperrors "github.com/altynaay/fieldops/pkg/errors"
)

// Activity actions that can be reversed from the audit trail. Bulk actions
// are recorded but not undoable.
var undoableActivityActions = map[string]struct{}{
	"create":    {},
	"update":    {},
	"delete":    {},
	"mark_done": {},
	"reorder":   {},
}

// AuditLogDTO is the API projection of an audit row.
type AuditLogDTO struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"user_id"`
	Username  string         `json:"username,omitempty"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entity_id"`
	Details   map[string]any `json:"details,omitempty"`
	Undoable  bool           `json:"undoable"`
	CreatedAt time.Time      `json:"created_at"`
}

// UndoResult describes a completed undo operation.
type UndoResult struct {
	Undone     bool   `json:"undone"`
	Action     string `json:"action"`
	ActivityID string `json:"activity_id"`
}

// AuditService persists the append-only audit trail and reverses undoable
// activity operations from stored snapshots.
type AuditService struct {
	db       *gorm.DB
	notifier *NotificationService
}

// NewAuditService constructs an AuditService. The notifier is optional and
// only used to announce undo operations.
func NewAuditService(db *gorm.DB, notifier *NotificationService) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, notifier: notifier}, nil
}

// Record appends one audit row inside the caller's transaction so the entry
// commits or rolls back together with the mutation it describes.
func (s *AuditService) Record(tx *gorm.DB, actorID *string, action, entity, entityID string, details map[string]any) error {
	if tx == nil {
		tx = s.db
	}
	if strings.TrimSpace(action) == "" {
		return errors.New("audit service: action is required")
	}

	if details == nil {
		details = map[string]any{}
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("audit service: marshal details: %w", err)
	}

	row := models.AuditLog{
		Action:   strings.TrimSpace(action),
		Entity:   strings.TrimSpace(entity),
		EntityID: strings.TrimSpace(entityID),
		Details:  datatypes.JSON(encoded),
	}
	if actorID != nil && strings.TrimSpace(*actorID) != "" {
		id := strings.TrimSpace(*actorID)
		row.UserID = &id
	}

	return tx.Create(&row).Error
}

// List returns paginated audit logs ordered by creation time descending,
// flagging the rows that can be undone.
func (s *AuditService) List(ctx context.Context, page, perPage int) ([]AuditLogDTO, int64, error) {
	ctx = ensureContext(ctx)

	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.AuditLog{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	var rows []models.AuditLog
	if err := s.db.WithContext(ctx).
		Preload("User").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}

	items := make([]AuditLogDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapAuditLog(row))
	}
	return items, total, nil
}

// Undo reverses the operation captured by an audit row. It never rewrites
// history: the reversal commits as a fresh compensating audit row
// (undo_<action>) referencing the original entry.
func (s *AuditService) Undo(ctx context.Context, auditID string, actor *models.User) (*UndoResult, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	var log models.AuditLog
	if err := s.db.WithContext(ctx).Where("id = ?", auditID).First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("audit service: load log: %w", err)
	}

	if log.Entity != "activity" {
		return nil, apperrors.NewBadRequest("this audit action is not undoable")
	}
	if _, ok := undoableActivityActions[log.Action]; !ok {
		return nil, apperrors.NewBadRequest("this audit action is not undoable")
	}

	details := map[string]any{}
	if len(log.Details) > 0 {
		// A malformed blob is treated the same as a missing snapshot below.
		_ = json.Unmarshal(log.Details, &details)
	}

	activityID := log.EntityID

	var err error
	switch log.Action {
	case "create":
		err = s.undoCreate(ctx, &log, activityID, actor)
	case "delete":
		err = s.undoDelete(ctx, &log, details, activityID, actor)
	default:
		err = s.undoRestore(ctx, &log, details, activityID, actor)
	}
	if err != nil {
		return nil, err
	}

	s.announceUndo(ctx, log.Action, activityID, actor)

	return &UndoResult{Undone: true, Action: log.Action, ActivityID: activityID}, nil
}

// undoCreate removes the activity produced by the original create.
func (s *AuditService) undoCreate(ctx context.Context, log *models.AuditLog, activityID string, actor *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Activity
		if err := tx.Preload("Assignments").Where("id = ?", activityID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("audit service: load activity: %w", err)
		}

		before := activitySnapshot(&row)
		if err := tx.Select("Assignments").Delete(&row).Error; err != nil {
			return fmt.Errorf("audit service: delete activity: %w", err)
		}

		return s.Record(tx, &actor.ID, "undo_create", "activity", activityID, map[string]any{
			"target_audit_id": log.ID,
			"before":          before,
		})
	})
}

// undoDelete re-creates the deleted activity with its original identity and
// restores the snapshot's current-assignment set.
func (s *AuditService) undoDelete(ctx context.Context, log *models.AuditLog, details map[string]any, activityID string, actor *models.User) error {
	snap, ok := details["before"].(map[string]any)
	if !ok {
		return apperrors.NewBadRequest("snapshot missing for undo")
	}
	if !validSnapshot(snap) {
		return apperrors.NewBadRequest("snapshot is malformed; cannot undo")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Activity
		err := tx.Where("id = ?", activityID).First(&existing).Error
		if err == nil {
			return apperrors.NewConflict("activity id already exists; cannot restore delete")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("audit service: check existing: %w", err)
		}

		date, _ := snapDate(snap, "date")
		address := normalizeAddress(snapString(snap, "address"), snapString(snap, "location"))
		restored := models.Activity{
			BaseModel:       models.BaseModel{ID: activityID},
			CreatedByUserID: defaultIfEmpty(snapString(snap, "created_by_user_id"), actor.ID),
			DoneByUserID:    snapStringPtr(snap, "done_by_user_id"),
			DoneAt:          snapTimePtr(snap, "done_at"),
			Date:            date,
			ActivityType:    defaultIfEmpty(snapString(snap, "activity_type"), "-"),
			CustomerName:    defaultIfEmpty(snapString(snap, "customer_name"), "-"),
			Location:        normalizeLocation(snapString(snap, "location"), address),
			Address:         address,
			Status:          defaultIfEmpty(snapString(snap, "status"), models.ActivityStatusPending),
			Priority:        snapInt(snap, "priority"),
			ReportText:      snapString(snap, "report_text"),
			DeviceInfo:      snapString(snap, "device_info"),
			ExtraFields:     encodeExtraFields(snapMap(snap, "extra_fields")),
		}
		if err := tx.Create(&restored).Error; err != nil {
			return fmt.Errorf("audit service: restore activity: %w", err)
		}

		if err := setAssignments(tx, restored.ID, snapStringSlice(snap, "assigned_staff_ids"), actor.ID, false); err != nil {
			return err
		}

		return s.Record(tx, &actor.ID, "undo_delete", "activity", activityID, map[string]any{
			"target_audit_id": log.ID,
			"after":           snap,
		})
	})
}

// undoRestore re-applies the whole before snapshot onto the existing row.
// Unchanged fields are restored too; the changed-fields diff is display-only.
func (s *AuditService) undoRestore(ctx context.Context, log *models.AuditLog, details map[string]any, activityID string, actor *models.User) error {
	snap, ok := details["before"].(map[string]any)
	if !ok {
		return apperrors.NewBadRequest("snapshot missing for undo")
	}
	if !validSnapshot(snap) {
		return apperrors.NewBadRequest("snapshot is malformed; cannot undo")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Activity
		if err := tx.Where("id = ?", activityID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("audit service: load activity: %w", err)
		}

		if err := applySnapshot(tx, &row, snap, actor.ID); err != nil {
			return err
		}

		return s.Record(tx, &actor.ID, "undo_"+log.Action, "activity", activityID, map[string]any{
			"target_audit_id": log.ID,
			"after":           snap,
		})
	})
}

// applySnapshot writes the snapshot's field values and assignment set onto an
// existing activity row.
func applySnapshot(tx *gorm.DB, row *models.Activity, snap map[string]any, byUserID string) error {
	if date, ok := snapDate(snap, "date"); ok {
		row.Date = date
	}
	if value := snapString(snap, "activity_type"); value != "" {
		row.ActivityType = value
	}
	if value := snapString(snap, "customer_name"); value != "" {
		row.CustomerName = value
	}
	row.Address = normalizeAddress(snapString(snap, "address"), snapString(snap, "location"))
	row.Location = normalizeLocation(snapString(snap, "location"), row.Address)
	row.Status = defaultIfEmpty(snapString(snap, "status"), row.Status)
	row.Priority = snapInt(snap, "priority")
	row.ReportText = snapString(snap, "report_text")
	row.DeviceInfo = snapString(snap, "device_info")
	row.ExtraFields = encodeExtraFields(snapMap(snap, "extra_fields"))
	row.DoneAt = snapTimePtr(snap, "done_at")
	row.DoneByUserID = snapStringPtr(snap, "done_by_user_id")

	if err := tx.Omit(clause.Associations).Save(row).Error; err != nil {
		return fmt.Errorf("audit service: apply snapshot: %w", err)
	}

	return setAssignments(tx, row.ID, snapStringSlice(snap, "assigned_staff_ids"), byUserID, false)
}

func (s *AuditService) announceUndo(ctx context.Context, action, activityID string, actor *models.User) {
	if s.notifier == nil {
		return
	}
	// Announcement failures never fail the undo itself.
	text := fmt.Sprintf("%s undid %s for activity #%s", actor.Username, action, shortID(activityID))
	_ = s.notifier.BroadcastAll(ctx, "audit_undo", text, &activityID)
}

func mapAuditLog(row models.AuditLog) AuditLogDTO {
	_, undoable := undoableActivityActions[row.Action]

	var details map[string]any
	if len(row.Details) > 0 {
		_ = json.Unmarshal(row.Details, &details)
	}

	dto := AuditLogDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		Action:    row.Action,
		Entity:    row.Entity,
		EntityID:  row.EntityID,
		Details:   details,
		Undoable:  row.Entity == "activity" && undoable,
		CreatedAt: row.CreatedAt,
	}
	if row.User != nil {
		dto.Username = row.User.Username
	}
	return dto
}

// shortID trims a UUID down to its first segment for human readable messages.
func shortID(id string) string {
	if idx := strings.IndexByte(id, '-'); idx > 0 {
		return id[:idx]
	}
	return id
}
