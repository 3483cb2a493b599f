package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/altynaay/fieldops/internal/models"
)

// NameCount pairs a grouping key with how many rows fell into it.
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// RecentActivityDTO is the trimmed projection used by the dashboard's
// recent-work list.
type RecentActivityDTO struct {
	ID           string `json:"id"`
	CustomerName string `json:"customer_name"`
	Address      string `json:"address"`
	ActivityType string `json:"activity_type"`
	Status       string `json:"status"`
	Date         string `json:"date"`
}

// DashboardStats aggregates the current workload for the landing page.
type DashboardStats struct {
	TotalToday int64               `json:"total_today"`
	TotalWeek  int64               `json:"total_week"`
	Pending    int64               `json:"pending"`
	Done       int64               `json:"done"`
	ByType     []NameCount         `json:"by_type"`
	ByStaff    []NameCount         `json:"by_staff"`
	Recent     []RecentActivityDTO `json:"recent"`
}

// DashboardService computes aggregate counts over the activity table.
type DashboardService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(db *gorm.DB) (*DashboardService, error) {
	if db == nil {
		return nil, errors.New("dashboard service: db is required")
	}
	return &DashboardService{db: db, now: time.Now}, nil
}

// Stats counts today's and this week's activities, the pending/done split,
// the per-type and per-staff distributions and the five newest rows. The
// week starts on Monday.
func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	ctx = ensureContext(ctx)

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))

	activities := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Activity{})
	}

	stats := &DashboardStats{
		ByType:  make([]NameCount, 0),
		ByStaff: make([]NameCount, 0),
		Recent:  make([]RecentActivityDTO, 0),
	}

	if err := activities().Where("date = ?", today).Count(&stats.TotalToday).Error; err != nil {
		return nil, fmt.Errorf("dashboard service: count today: %w", err)
	}
	if err := activities().Where("date >= ?", weekStart).Count(&stats.TotalWeek).Error; err != nil {
		return nil, fmt.Errorf("dashboard service: count week: %w", err)
	}
	if err := activities().Where("status = ?", models.ActivityStatusPending).Count(&stats.Pending).Error; err != nil {
		return nil, fmt.Errorf("dashboard service: count pending: %w", err)
	}
	if err := activities().Where("status = ?", models.ActivityStatusDone).Count(&stats.Done).Error; err != nil {
		return nil, fmt.Errorf("dashboard service: count done: %w", err)
	}

	if err := activities().
		Select("activity_type AS name, COUNT(id) AS count").
		Group("activity_type").
		Order("count DESC").
		Scan(&stats.ByType).Error; err != nil {
		return nil, fmt.Errorf("dashboard service: group by type: %w", err)
	}

	byStaff, err := s.countByStaff(ctx)
	if err != nil {
		return nil, err
	}
	stats.ByStaff = byStaff

	var recent []models.Activity
	if err := activities().Order("created_at DESC").Limit(5).Find(&recent).Error; err != nil {
		return nil, fmt.Errorf("dashboard service: recent: %w", err)
	}
	for i := range recent {
		row := &recent[i]
		stats.Recent = append(stats.Recent, RecentActivityDTO{
			ID:           row.ID,
			CustomerName: row.CustomerName,
			Address:      row.Address,
			ActivityType: row.ActivityType,
			Status:       row.Status,
			Date:         row.Date.Format(dateLayout),
		})
	}

	return stats, nil
}

// countByStaff groups the current assignments per staff member. Done in two
// queries so we never depend on the generated join-table names.
func (s *DashboardService) countByStaff(ctx context.Context) ([]NameCount, error) {
	var grouped []struct {
		StaffID string
		Count   int64
	}
	if err := s.db.WithContext(ctx).Model(&models.ActivityAssignment{}).
		Select("staff_id, COUNT(id) AS count").
		Where("is_current = ?", true).
		Group("staff_id").
		Scan(&grouped).Error; err != nil {
		return nil, fmt.Errorf("dashboard service: group by staff: %w", err)
	}

	out := make([]NameCount, 0, len(grouped))
	if len(grouped) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(grouped))
	for _, entry := range grouped {
		ids = append(ids, entry.StaffID)
	}
	var members []models.Staff
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&members).Error; err != nil {
		return nil, fmt.Errorf("dashboard service: load staff: %w", err)
	}
	names := make(map[string]string, len(members))
	for _, member := range members {
		names[member.ID] = member.Name
	}

	for _, entry := range grouped {
		name := names[entry.StaffID]
		if name == "" {
			continue
		}
		out = append(out, NameCount{Name: name, Count: entry.Count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
