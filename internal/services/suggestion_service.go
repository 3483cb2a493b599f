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

// Fields supported by Suggest.
const (
	SuggestCustomerName = "customer_name"
	SuggestAddress      = "address"
	SuggestStaff        = "staff"
)

const suggestionLimit = 10

// SuggestionService serves typeahead values for the activity form.
type SuggestionService struct {
	db *gorm.DB
}

// NewSuggestionService constructs a SuggestionService.
func NewSuggestionService(db *gorm.DB) (*SuggestionService, error) {
	if db == nil {
		return nil, errors.New("suggestion service: db is required")
	}
	return &SuggestionService{db: db}, nil
}

// Suggest returns up to ten distinct non-empty values matching the query for
// one field. Staff suggestions only cover active members.
func (s *SuggestionService) Suggest(ctx context.Context, field, query string) ([]string, error) {
	ctx = ensureContext(ctx)
	pattern := "%" + strings.TrimSpace(query) + "%"

	out := make([]string, 0, suggestionLimit)
	var err error
	switch field {
	case SuggestCustomerName:
		err = s.db.WithContext(ctx).Model(&models.Activity{}).
			Distinct().
			Where("customer_name LIKE ? AND customer_name <> ''", pattern).
			Limit(suggestionLimit).
			Pluck("customer_name", &out).Error
	case SuggestAddress:
		err = s.db.WithContext(ctx).Model(&models.Activity{}).
			Distinct().
			Where("address LIKE ? AND address <> ''", pattern).
			Limit(suggestionLimit).
			Pluck("address", &out).Error
	case SuggestStaff:
		err = s.db.WithContext(ctx).Model(&models.Staff{}).
			Where("name LIKE ? AND active = ?", pattern, true).
			Limit(suggestionLimit).
			Pluck("name", &out).Error
	default:
		return nil, apperrors.NewBadRequest("field must be one of customer_name, address, staff")
	}
	if err != nil {
		return nil, fmt.Errorf("suggestion service: %w", err)
	}
	return out, nil
}
