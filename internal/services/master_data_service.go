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

// MasterDataDTO is the API projection of one lookup value.
type MasterDataDTO struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Value    string `json:"value"`
	Active   bool   `json:"active"`
}

// MasterDataInput carries the fields for creating or replacing a lookup value.
type MasterDataInput struct {
	Category string `json:"category" validate:"required,max=120"`
	Value    string `json:"value" validate:"required,max=255"`
	Active   *bool  `json:"active"`
}

// MasterDataService manages the lookup lists behind form dropdowns. Every
// mutation is audited under the master_data entity; those entries are
// informational and cannot be undone.
type MasterDataService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewMasterDataService constructs a MasterDataService.
func NewMasterDataService(db *gorm.DB, audit *AuditService) (*MasterDataService, error) {
	if db == nil {
		return nil, errors.New("master data service: db is required")
	}
	if audit == nil {
		return nil, errors.New("master data service: audit service is required")
	}
	return &MasterDataService{db: db, audit: audit}, nil
}

// List returns lookup values ordered by category then value, optionally
// restricted to one category.
func (s *MasterDataService) List(ctx context.Context, category string) ([]MasterDataDTO, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.MasterData{})
	if category = strings.TrimSpace(category); category != "" {
		query = query.Where("category = ?", category)
	}

	var rows []models.MasterData
	if err := query.Order("category ASC").Order("value ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("master data service: list: %w", err)
	}

	items := make([]MasterDataDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapMasterData(row))
	}
	return items, nil
}

// Create adds a new value, rejecting duplicates within the category.
func (s *MasterDataService) Create(ctx context.Context, input MasterDataInput, actor *models.User) (*MasterDataDTO, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	row := models.MasterData{
		Category: strings.TrimSpace(input.Category),
		Value:    strings.TrimSpace(input.Value),
		Active:   true,
	}
	if input.Active != nil {
		row.Active = *input.Active
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.MasterData{}).
			Where("category = ? AND value = ?", row.Category, row.Value).
			Count(&count).Error; err != nil {
			return fmt.Errorf("master data service: check duplicate: %w", err)
		}
		if count > 0 {
			return apperrors.NewConflict("value already exists in this category")
		}

		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("master data service: create: %w", err)
		}
		return s.audit.Record(tx, &actor.ID, "create", "master_data", row.ID, map[string]any{
			"category": row.Category,
			"value":    row.Value,
			"active":   row.Active,
		})
	})
	if err != nil {
		return nil, err
	}

	dto := mapMasterData(row)
	return &dto, nil
}

// Update replaces the category, value and active flag of one entry.
func (s *MasterDataService) Update(ctx context.Context, id string, input MasterDataInput, actor *models.User) (*MasterDataDTO, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	var row models.MasterData
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("master data service: load: %w", err)
		}

		row.Category = strings.TrimSpace(input.Category)
		row.Value = strings.TrimSpace(input.Value)
		if input.Active != nil {
			row.Active = *input.Active
		}

		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("master data service: update: %w", err)
		}
		return s.audit.Record(tx, &actor.ID, "update", "master_data", row.ID, map[string]any{
			"category": row.Category,
			"value":    row.Value,
			"active":   row.Active,
		})
	})
	if err != nil {
		return nil, err
	}

	dto := mapMasterData(row)
	return &dto, nil
}

// Delete removes one entry.
func (s *MasterDataService) Delete(ctx context.Context, id string, actor *models.User) error {
	ctx = ensureContext(ctx)
	if actor == nil {
		return apperrors.ErrUnauthorized
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.MasterData
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("master data service: load: %w", err)
		}

		if err := tx.Delete(&row).Error; err != nil {
			return fmt.Errorf("master data service: delete: %w", err)
		}
		return s.audit.Record(tx, &actor.ID, "delete", "master_data", row.ID, map[string]any{
			"category": row.Category,
			"value":    row.Value,
		})
	})
}

func mapMasterData(row models.MasterData) MasterDataDTO {
	return MasterDataDTO{
		ID:       row.ID,
		Category: row.Category,
		Value:    row.Value,
		Active:   row.Active,
	}
}
