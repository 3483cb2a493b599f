package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/altynaay/fieldops/internal/models"
	apperrors "github.com/altynaay/fieldops/pkg/errors"
)

// StaffDTO is the API projection of a staff member.
type StaffDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Active bool   `json:"active"`
}

// CreateStaffInput carries the fields accepted when registering staff.
type CreateStaffInput struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"max=40"`
}

// UpdateStaffInput carries a partial staff update; nil fields stay unchanged.
type UpdateStaffInput struct {
	Name   *string `json:"name" validate:"omitempty,max=120"`
	Phone  *string `json:"phone" validate:"omitempty,max=40"`
	Active *bool   `json:"active"`
}

// StaffService manages the roster of assignable field staff.
type StaffService struct {
	db *gorm.DB
}

func NewStaffService(db *gorm.DB) (*StaffService, error) {
	if db == nil {
		return nil, errors.New("staff service: db is required")
	}
	return &StaffService{db: db}, nil
}

// List returns staff members, optionally restricted to active ones.
func (s *StaffService) List(ctx context.Context, activeOnly bool) ([]StaffDTO, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Staff{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var rows []models.Staff
	if err := query.Order("name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("staff service: list: %w", err)
	}

	items := make([]StaffDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapStaff(row))
	}
	return items, nil
}

// Create registers a new staff member, active by default.
func (s *StaffService) Create(ctx context.Context, input CreateStaffInput) (*StaffDTO, error) {
	ctx = ensureContext(ctx)

	row := models.Staff{
		Name:   strings.TrimSpace(input.Name),
		Phone:  strings.TrimSpace(input.Phone),
		Active: true,
	}
	if row.Name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("staff service: create: %w", err)
	}

	dto := mapStaff(row)
	return &dto, nil
}

// Update applies a partial update. Deactivating a staff member keeps their
// existing assignments; it only blocks new ones.
func (s *StaffService) Update(ctx context.Context, id string, input UpdateStaffInput) (*StaffDTO, error) {
	ctx = ensureContext(ctx)

	var row models.Staff
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("staff service: load: %w", err)
	}

	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		if trimmed == "" {
			return nil, apperrors.NewBadRequest("name cannot be empty")
		}
		row.Name = trimmed
	}
	if input.Phone != nil {
		row.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.Active != nil {
		row.Active = *input.Active
	}

	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return nil, fmt.Errorf("staff service: update: %w", err)
	}

	dto := mapStaff(row)
	return &dto, nil
}

func mapStaff(row models.Staff) StaffDTO {
	return StaffDTO{
		ID:     row.ID,
		Name:   row.Name,
		Phone:  row.Phone,
		Active: row.Active,
	}
}
