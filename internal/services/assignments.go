package services

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/altynaay/fieldops/internal/models"
)

// setAssignments replaces the current assignment set of an activity. All
// current rows are marked superseded first, then a fresh current row is
// inserted per requested staff id. Prior rows are never deleted; the full
// assignment history stays queryable. This is the single mechanism shared by
// normal reassignment and undo, so "current" is always an exclusively
// maintained subset.
//
// Staff ids that do not resolve to a known staff member are skipped. When
// activeOnly is set, inactive staff are skipped too (the normal assignment
// path); undo restores assignments regardless of active state.
func setAssignments(tx *gorm.DB, activityID string, staffIDs []string, byUserID string, activeOnly bool) error {
	if err := tx.Model(&models.ActivityAssignment{}).
		Where("activity_id = ? AND is_current = ?", activityID, true).
		Update("is_current", false).Error; err != nil {
		return fmt.Errorf("supersede assignments: %w", err)
	}

	for _, staffID := range normaliseIDs(staffIDs) {
		query := tx.Where("id = ?", staffID)
		if activeOnly {
			query = query.Where("active = ?", true)
		}

		var staff models.Staff
		if err := query.First(&staff).Error; err != nil {
			continue
		}

		assignment := models.ActivityAssignment{
			ActivityID:       activityID,
			StaffID:          staff.ID,
			AssignedByUserID: byUserID,
			IsCurrent:        true,
		}
		if err := tx.Create(&assignment).Error; err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}

	return nil
}

// currentStaffIDs loads the live assignment set for an activity.
func currentStaffIDs(tx *gorm.DB, activityID string) ([]string, error) {
	var ids []string
	if err := tx.Model(&models.ActivityAssignment{}).
		Where("activity_id = ? AND is_current = ?", activityID, true).
		Pluck("staff_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load current assignments: %w", err)
	}
	return ids, nil
}
