package services

import (
	"encoding/json"
	"time"

	"github.com/altynaay/fieldops/internal/models"
)

// dateLayout is the wire format for activity dates inside snapshots.
const dateLayout = "2006-01-02"

// snapshotKeys is the fixed field order used when diffing two snapshots.
var snapshotKeys = []string{
	"date",
	"activity_type",
	"customer_name",
	"location",
	"address",
	"status",
	"priority",
	"report_text",
	"device_info",
	"extra_fields",
	"assigned_staff_ids",
	"done_by_user_id",
	"done_at",
}

// activitySnapshot flattens the semantically relevant fields of an activity
// into an open map, including the current assigned-staff id set. Server
// managed timestamps (created_at/updated_at) are deliberately excluded: the
// snapshot describes what the user controls, not how storage tracks it.
func activitySnapshot(a *models.Activity) map[string]any {
	var address any
	if resolved := resolveAddress(a); resolved != "" {
		address = resolved
	}

	var doneAt any
	if a.DoneAt != nil {
		doneAt = a.DoneAt.UTC().Format(time.RFC3339)
	}

	var doneBy any
	if a.DoneByUserID != nil {
		doneBy = *a.DoneByUserID
	}

	staffIDs := make([]string, 0)
	for _, assignment := range a.CurrentAssignments() {
		if assignment.StaffID != "" {
			staffIDs = append(staffIDs, assignment.StaffID)
		}
	}

	return map[string]any{
		"id":                 a.ID,
		"created_by_user_id": a.CreatedByUserID,
		"done_by_user_id":    doneBy,
		"done_at":            doneAt,
		"date":               a.Date.Format(dateLayout),
		"activity_type":      a.ActivityType,
		"customer_name":      a.CustomerName,
		"location":           a.DisplayLocation(),
		"address":            address,
		"status":             a.Status,
		"priority":           a.Priority,
		"report_text":        a.ReportText,
		"device_info":        a.DeviceInfo,
		"extra_fields":       decodeExtraFields(a.ExtraFields),
		"assigned_staff_ids": staffIDs,
	}
}

// validSnapshot reports whether a stored snapshot carries the fields a restore
// depends on. A blob whose date does not parse, or that lost its identifying
// fields, cannot be applied without corrupting the row.
func validSnapshot(snap map[string]any) bool {
	if _, ok := snapDate(snap, "date"); !ok {
		return false
	}
	return snapString(snap, "activity_type") != "" && snapString(snap, "customer_name") != ""
}

// resolveAddress applies the address-over-location fallback without the "-"
// placeholder used for display.
func resolveAddress(a *models.Activity) string {
	if a.Address != "" {
		return a.Address
	}
	return a.Location
}

// changedFields lists the snapshot keys whose values differ. The list is
// informational only; undo always restores the entire before snapshot.
func changedFields(before, after map[string]any) []string {
	changed := make([]string, 0)
	for _, key := range snapshotKeys {
		if !jsonEqual(before[key], after[key]) {
			changed = append(changed, key)
		}
	}
	return changed
}

// jsonEqual compares two values by their canonical JSON encoding so that a
// freshly built snapshot compares equal to one decoded from storage.
func jsonEqual(a, b any) bool {
	left, errA := json.Marshal(a)
	right, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(left) == string(right)
}

func decodeExtraFields(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// Snapshot value accessors. Stored snapshots round-trip through JSON, so
// numbers arrive as float64 and string lists as []any.

func snapString(snap map[string]any, key string) string {
	if value, ok := snap[key].(string); ok {
		return value
	}
	return ""
}

func snapInt(snap map[string]any, key string) int {
	switch value := snap[key].(type) {
	case float64:
		return int(value)
	case int:
		return value
	case json.Number:
		if parsed, err := value.Int64(); err == nil {
			return int(parsed)
		}
	}
	return 0
}

func snapStringSlice(snap map[string]any, key string) []string {
	raw, ok := snap[key].([]any)
	if !ok {
		if typed, ok := snap[key].([]string); ok {
			return typed
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if value, ok := item.(string); ok && value != "" {
			out = append(out, value)
		}
	}
	return out
}

func snapStringPtr(snap map[string]any, key string) *string {
	if value, ok := snap[key].(string); ok && value != "" {
		return &value
	}
	return nil
}

func snapTimePtr(snap map[string]any, key string) *time.Time {
	value, ok := snap[key].(string)
	if !ok || value == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &parsed
}

func snapDate(snap map[string]any, key string) (time.Time, bool) {
	value, ok := snap[key].(string)
	if !ok || value == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func snapMap(snap map[string]any, key string) map[string]any {
	if value, ok := snap[key].(map[string]any); ok {
		return value
	}
	return map[string]any{}
}

func encodeExtraFields(fields map[string]any) []byte {
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return []byte("{}")
	}
	return data
}
