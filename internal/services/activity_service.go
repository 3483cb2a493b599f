package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/altynaay/fieldops/internal/models"
	apperrors "github.com/altynaay/fieldops/pkg/errors"
)

// Bulk actions applied to many activities in one request.
const (
	BulkActionSetStatus   = "set_status"
	BulkActionAssignStaff = "assign_staff"
	BulkActionSetPriority = "set_priority"
	BulkActionDelete      = "delete"
)

// AssignedStaffDTO identifies one staff member currently assigned to an activity.
type AssignedStaffDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ActivityDTO is the API projection of an activity row.
type ActivityDTO struct {
	ID              string             `json:"id"`
	CreatedByUserID string             `json:"created_by_user_id"`
	DoneByUserID    *string            `json:"done_by_user_id"`
	DoneAt          *time.Time         `json:"done_at"`
	Date            string             `json:"date"`
	ActivityType    string             `json:"activity_type"`
	CustomerName    string             `json:"customer_name"`
	Location        string             `json:"location"`
	Address         string             `json:"address"`
	Status          string             `json:"status"`
	Priority        int                `json:"priority"`
	ReportText      string             `json:"report_text"`
	DeviceInfo      string             `json:"device_info"`
	ExtraFields     map[string]any     `json:"extra_fields"`
	AssignedStaff   []AssignedStaffDTO `json:"assigned_staff"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// CreateActivityInput carries the fields accepted when creating an activity.
type CreateActivityInput struct {
	Date             string         `json:"date" validate:"required"`
	ActivityType     string         `json:"activity_type" validate:"required,max=120"`
	CustomerName     string         `json:"customer_name" validate:"required,max=120"`
	Location         string         `json:"location" validate:"max=120"`
	Address          string         `json:"address" validate:"max=255"`
	Priority         int            `json:"priority" validate:"min=0,max=1000"`
	ReportText       string         `json:"report_text"`
	DeviceInfo       string         `json:"device_info" validate:"max=255"`
	ExtraFields      map[string]any `json:"extra_fields"`
	AssignedStaffIDs []string       `json:"assigned_staff_ids"`
}

// UpdateActivityInput carries a partial update; nil fields are left unchanged.
type UpdateActivityInput struct {
	Date             *string        `json:"date"`
	ActivityType     *string        `json:"activity_type" validate:"omitempty,max=120"`
	CustomerName     *string        `json:"customer_name" validate:"omitempty,max=120"`
	Location         *string        `json:"location" validate:"omitempty,max=120"`
	Address          *string        `json:"address" validate:"omitempty,max=255"`
	Status           *string        `json:"status" validate:"omitempty,oneof=pending done"`
	Priority         *int           `json:"priority" validate:"omitempty,min=0,max=1000"`
	ReportText       *string        `json:"report_text"`
	DeviceInfo       *string        `json:"device_info" validate:"omitempty,max=255"`
	ExtraFields      map[string]any `json:"extra_fields"`
	AssignedStaffIDs []string       `json:"assigned_staff_ids"`
}

// ListActivitiesInput collects the supported list filters.
type ListActivitiesInput struct {
	Search       string
	Status       string
	StaffID      string
	CustomerName string
	Location     string
	DateFrom     string
	DateTo       string
	Page         int
	PerPage      int
}

// BulkActivityInput applies one action to a set of activities.
type BulkActivityInput struct {
	Action      string   `json:"action" validate:"required,oneof=set_status assign_staff set_priority delete"`
	ActivityIDs []string `json:"activity_ids" validate:"required,min=1"`
	Status      string   `json:"status" validate:"omitempty,oneof=pending done"`
	Priority    *int     `json:"priority" validate:"omitempty,min=0,max=1000"`
	StaffIDs    []string `json:"staff_ids"`
}

// BulkResult reports how many activities a bulk action touched.
type BulkResult struct {
	Action   string `json:"action"`
	Affected int    `json:"affected"`
}

// ActivityService implements activity CRUD, bulk operations and ordering.
// Every mutation snapshots the row, applies the change and writes its audit
// entry inside a single transaction; the broadcast goes out only after commit.
type ActivityService struct {
	db       *gorm.DB
	audit    *AuditService
	notifier *NotificationService
}

// NewActivityService constructs an ActivityService. The notifier is optional.
func NewActivityService(db *gorm.DB, audit *AuditService, notifier *NotificationService) (*ActivityService, error) {
	if db == nil {
		return nil, errors.New("activity service: db is required")
	}
	if audit == nil {
		return nil, errors.New("activity service: audit service is required")
	}
	return &ActivityService{db: db, audit: audit, notifier: notifier}, nil
}

// Create persists a new activity together with its initial assignment set.
func (s *ActivityService) Create(ctx context.Context, input CreateActivityInput, actor *models.User) (*ActivityDTO, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	date, err := time.Parse(dateLayout, strings.TrimSpace(input.Date))
	if err != nil {
		return nil, apperrors.NewBadRequest("date must be formatted YYYY-MM-DD")
	}

	address := normalizeAddress(input.Address, input.Location)
	row := models.Activity{
		CreatedByUserID: actor.ID,
		Date:            date,
		ActivityType:    strings.TrimSpace(input.ActivityType),
		CustomerName:    strings.TrimSpace(input.CustomerName),
		Location:        normalizeLocation(input.Location, address),
		Address:         address,
		Status:          models.ActivityStatusPending,
		Priority:        input.Priority,
		ReportText:      input.ReportText,
		DeviceInfo:      strings.TrimSpace(input.DeviceInfo),
		ExtraFields:     encodeExtraFields(input.ExtraFields),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("activity service: create: %w", err)
		}
		if err := setAssignments(tx, row.ID, input.AssignedStaffIDs, actor.ID, true); err != nil {
			return err
		}

		loaded, err := loadActivity(tx, row.ID)
		if err != nil {
			return err
		}
		return s.audit.Record(tx, &actor.ID, "create", "activity", row.ID, map[string]any{
			"after": activitySnapshot(loaded),
		})
	})
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, "activity_created", fmt.Sprintf("%s created activity for %s", actor.Username, row.CustomerName), row.ID)

	return s.Get(ctx, row.ID)
}

// Get loads one activity with its current assignments.
func (s *ActivityService) Get(ctx context.Context, id string) (*ActivityDTO, error) {
	ctx = ensureContext(ctx)

	row, err := loadActivity(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	dto := mapActivity(row)
	return &dto, nil
}

// List returns filtered, paginated activities. Pending work sorts before
// finished work, then higher priority first, then newest first.
func (s *ActivityService) List(ctx context.Context, input ListActivitiesInput) ([]ActivityDTO, int64, error) {
	ctx = ensureContext(ctx)

	if input.Page <= 0 {
		input.Page = 1
	}
	if input.PerPage <= 0 || input.PerPage > 100 {
		input.PerPage = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Activity{})

	if search := strings.TrimSpace(input.Search); search != "" {
		pattern := "%" + search + "%"
		query = query.Where(
			"customer_name LIKE ? OR activity_type LIKE ? OR address LIKE ? OR location LIKE ? OR report_text LIKE ?",
			pattern, pattern, pattern, pattern, pattern,
		)
	}
	if status := strings.TrimSpace(input.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if customer := strings.TrimSpace(input.CustomerName); customer != "" {
		query = query.Where("customer_name LIKE ?", "%"+customer+"%")
	}
	if location := strings.TrimSpace(input.Location); location != "" {
		query = query.Where("address LIKE ? OR location LIKE ?", "%"+location+"%", "%"+location+"%")
	}
	if staffID := strings.TrimSpace(input.StaffID); staffID != "" {
		query = query.Where(
			"id IN (?)",
			s.db.Model(&models.ActivityAssignment{}).
				Select("activity_id").
				Where("staff_id = ? AND is_current = ?", staffID, true),
		)
	}
	if from := strings.TrimSpace(input.DateFrom); from != "" {
		parsed, err := time.Parse(dateLayout, from)
		if err != nil {
			return nil, 0, apperrors.NewBadRequest("date_from must be formatted YYYY-MM-DD")
		}
		query = query.Where("date >= ?", parsed)
	}
	if to := strings.TrimSpace(input.DateTo); to != "" {
		parsed, err := time.Parse(dateLayout, to)
		if err != nil {
			return nil, 0, apperrors.NewBadRequest("date_to must be formatted YYYY-MM-DD")
		}
		query = query.Where("date <= ?", parsed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("activity service: count: %w", err)
	}

	var rows []models.Activity
	if err := query.
		Preload("Assignments").
		Preload("Assignments.Staff").
		Order("CASE WHEN status = 'pending' THEN 0 ELSE 1 END").
		Order("priority DESC").
		Order("created_at DESC").
		Offset((input.Page - 1) * input.PerPage).
		Limit(input.PerPage).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("activity service: list: %w", err)
	}

	items := make([]ActivityDTO, 0, len(rows))
	for i := range rows {
		items = append(items, mapActivity(&rows[i]))
	}
	return items, total, nil
}

// Update applies a partial update, auditing the before/after snapshots plus
// the list of fields that actually changed.
func (s *ActivityService) Update(ctx context.Context, id string, input UpdateActivityInput, actor *models.User) (*ActivityDTO, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	var customer string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := loadActivity(tx, id)
		if err != nil {
			return err
		}
		before := activitySnapshot(row)

		if input.Date != nil {
			parsed, err := time.Parse(dateLayout, strings.TrimSpace(*input.Date))
			if err != nil {
				return apperrors.NewBadRequest("date must be formatted YYYY-MM-DD")
			}
			row.Date = parsed
		}
		if input.ActivityType != nil {
			row.ActivityType = strings.TrimSpace(*input.ActivityType)
		}
		if input.CustomerName != nil {
			row.CustomerName = strings.TrimSpace(*input.CustomerName)
		}
		if input.Address != nil || input.Location != nil {
			address := row.Address
			location := row.Location
			if input.Address != nil {
				address = *input.Address
			}
			if input.Location != nil {
				location = *input.Location
			}
			row.Address = normalizeAddress(address, location)
			row.Location = normalizeLocation(location, row.Address)
		}
		if input.Status != nil {
			row.Status = *input.Status
			stampCompletion(row, actor.ID)
		}
		if input.Priority != nil {
			row.Priority = *input.Priority
		}
		if input.ReportText != nil {
			row.ReportText = *input.ReportText
		}
		if input.DeviceInfo != nil {
			row.DeviceInfo = strings.TrimSpace(*input.DeviceInfo)
		}
		if input.ExtraFields != nil {
			row.ExtraFields = encodeExtraFields(input.ExtraFields)
		}

		if err := tx.Omit(clause.Associations).Save(row).Error; err != nil {
			return fmt.Errorf("activity service: update: %w", err)
		}
		if input.AssignedStaffIDs != nil {
			if err := setAssignments(tx, row.ID, input.AssignedStaffIDs, actor.ID, true); err != nil {
				return err
			}
		}

		reloaded, err := loadActivity(tx, row.ID)
		if err != nil {
			return err
		}
		after := activitySnapshot(reloaded)
		customer = reloaded.CustomerName

		return s.audit.Record(tx, &actor.ID, "update", "activity", row.ID, map[string]any{
			"before":  before,
			"after":   after,
			"changed": changedFields(before, after),
		})
	})
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, "activity_updated", fmt.Sprintf("%s updated activity for %s", actor.Username, customer), id)

	return s.Get(ctx, id)
}

// Delete removes an activity, keeping its full snapshot in the audit trail so
// the deletion can be reversed.
func (s *ActivityService) Delete(ctx context.Context, id string, actor *models.User) error {
	ctx = ensureContext(ctx)
	if actor == nil {
		return apperrors.ErrUnauthorized
	}

	var customer string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := loadActivity(tx, id)
		if err != nil {
			return err
		}
		customer = row.CustomerName
		before := activitySnapshot(row)

		if err := tx.Select("Assignments").Delete(row).Error; err != nil {
			return fmt.Errorf("activity service: delete: %w", err)
		}

		return s.audit.Record(tx, &actor.ID, "delete", "activity", id, map[string]any{
			"before": before,
		})
	})
	if err != nil {
		return err
	}

	s.broadcast(ctx, "activity_deleted", fmt.Sprintf("%s deleted activity for %s", actor.Username, customer), id)
	return nil
}

// MarkDone finishes a pending activity, stamping who completed it and when.
// Finishing an already-done activity is rejected.
func (s *ActivityService) MarkDone(ctx context.Context, id string, actor *models.User) (*ActivityDTO, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	var customer string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := loadActivity(tx, id)
		if err != nil {
			return err
		}
		if row.Status == models.ActivityStatusDone {
			return apperrors.NewConflict("activity is already done")
		}
		before := activitySnapshot(row)
		customer = row.CustomerName

		row.Status = models.ActivityStatusDone
		stampCompletion(row, actor.ID)

		if err := tx.Omit(clause.Associations).Save(row).Error; err != nil {
			return fmt.Errorf("activity service: mark done: %w", err)
		}

		return s.audit.Record(tx, &actor.ID, "mark_done", "activity", id, map[string]any{
			"before": before,
			"after":  activitySnapshot(row),
		})
	})
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, "activity_done", fmt.Sprintf("%s marked activity for %s as done", actor.Username, customer), id)

	return s.Get(ctx, id)
}

// Reorder rewrites priorities so the given ids rank top-down. Ids outside the
// list keep their priority; unknown ids are skipped. Each changed row gets its
// own reorder audit entry so individual moves can be reversed.
func (s *ActivityService) Reorder(ctx context.Context, orderedIDs []string, actor *models.User) error {
	ctx = ensureContext(ctx)
	if actor == nil {
		return apperrors.ErrUnauthorized
	}

	ids := normaliseIDs(orderedIDs)
	if len(ids) == 0 {
		return apperrors.NewBadRequest("activity ids are required")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for index, id := range ids {
			row, err := loadActivity(tx, id)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					continue
				}
				return err
			}

			priority := len(ids) - index
			if row.Priority == priority {
				continue
			}
			before := activitySnapshot(row)

			row.Priority = priority
			if err := tx.Omit(clause.Associations).Save(row).Error; err != nil {
				return fmt.Errorf("activity service: reorder: %w", err)
			}

			if err := s.audit.Record(tx, &actor.ID, "reorder", "activity", id, map[string]any{
				"before": before,
				"after":  activitySnapshot(row),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.broadcast(ctx, "activity_reordered", fmt.Sprintf("%s reordered the activity list", actor.Username), "")
	return nil
}

// Bulk applies one action to many activities. Each touched row is audited
// individually with a bulk_ prefixed action; bulk entries are not undoable.
func (s *ActivityService) Bulk(ctx context.Context, input BulkActivityInput, actor *models.User) (*BulkResult, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	ids := normaliseIDs(input.ActivityIDs)
	if len(ids) == 0 {
		return nil, apperrors.NewBadRequest("activity ids are required")
	}

	switch input.Action {
	case BulkActionSetStatus:
		if input.Status == "" {
			return nil, apperrors.NewBadRequest("status is required for set_status")
		}
	case BulkActionSetPriority:
		if input.Priority == nil {
			return nil, apperrors.NewBadRequest("priority is required for set_priority")
		}
	case BulkActionAssignStaff, BulkActionDelete:
	default:
		return nil, apperrors.NewBadRequest("unknown bulk action")
	}

	affected := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			row, err := loadActivity(tx, id)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					continue
				}
				return err
			}
			before := activitySnapshot(row)

			switch input.Action {
			case BulkActionSetStatus:
				row.Status = input.Status
				stampCompletion(row, actor.ID)
				if err := tx.Omit(clause.Associations).Save(row).Error; err != nil {
					return fmt.Errorf("activity service: bulk set status: %w", err)
				}
			case BulkActionSetPriority:
				row.Priority = *input.Priority
				if err := tx.Omit(clause.Associations).Save(row).Error; err != nil {
					return fmt.Errorf("activity service: bulk set priority: %w", err)
				}
			case BulkActionAssignStaff:
				if err := setAssignments(tx, row.ID, input.StaffIDs, actor.ID, true); err != nil {
					return err
				}
			case BulkActionDelete:
				if err := tx.Select("Assignments").Delete(row).Error; err != nil {
					return fmt.Errorf("activity service: bulk delete: %w", err)
				}
			}

			details := map[string]any{"before": before}
			if input.Action != BulkActionDelete {
				reloaded, err := loadActivity(tx, id)
				if err != nil {
					return err
				}
				details["after"] = activitySnapshot(reloaded)
			}
			if err := s.audit.Record(tx, &actor.ID, "bulk_"+input.Action, "activity", id, details); err != nil {
				return err
			}
			affected++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, "activity_bulk",
		fmt.Sprintf("%s applied %s to %d activities", actor.Username, input.Action, affected), "")

	return &BulkResult{Action: input.Action, Affected: affected}, nil
}

// stampCompletion keeps the completion columns in step with the status: a row
// moved to done records who finished it and when, anything else clears both.
func stampCompletion(row *models.Activity, actorID string) {
	if row.Status == models.ActivityStatusDone {
		now := time.Now().UTC()
		row.DoneAt = &now
		row.DoneByUserID = &actorID
		return
	}
	row.DoneAt = nil
	row.DoneByUserID = nil
}

// broadcast announces a mutation to every user. Failures are swallowed: the
// mutation is already committed and must not be reported as failed.
func (s *ActivityService) broadcast(ctx context.Context, eventType, text, activityID string) {
	if s.notifier == nil {
		return
	}
	var ref *string
	if activityID != "" {
		ref = &activityID
	}
	_ = s.notifier.BroadcastAll(ctx, eventType, text, ref)
}

// loadActivity fetches one activity with its assignment history and staff.
func loadActivity(tx *gorm.DB, id string) (*models.Activity, error) {
	var row models.Activity
	if err := tx.
		Preload("Assignments").
		Preload("Assignments.Staff").
		Where("id = ?", id).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("load activity: %w", err)
	}
	return &row, nil
}

func mapActivity(row *models.Activity) ActivityDTO {
	assigned := make([]AssignedStaffDTO, 0)
	for _, assignment := range row.CurrentAssignments() {
		entry := AssignedStaffDTO{ID: assignment.StaffID}
		if assignment.Staff != nil {
			entry.Name = assignment.Staff.Name
		}
		assigned = append(assigned, entry)
	}

	return ActivityDTO{
		ID:              row.ID,
		CreatedByUserID: row.CreatedByUserID,
		DoneByUserID:    row.DoneByUserID,
		DoneAt:          row.DoneAt,
		Date:            row.Date.Format(dateLayout),
		ActivityType:    row.ActivityType,
		CustomerName:    row.CustomerName,
		Location:        row.DisplayLocation(),
		Address:         row.Address,
		Status:          row.Status,
		Priority:        row.Priority,
		ReportText:      row.ReportText,
		DeviceInfo:      row.DeviceInfo,
		ExtraFields:     decodeExtraFields(row.ExtraFields),
		AssignedStaff:   assigned,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}
