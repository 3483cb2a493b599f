package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/altynaay/fieldops/internal/models"
	"github.com/altynaay/fieldops/pkg/crypto"
	apperrors "github.com/altynaay/fieldops/pkg/errors"
)

// UserDTO is the API projection of a user account.
type UserDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CreateUserInput carries the fields accepted when creating an account.
type CreateUserInput struct {
	Username string `json:"username" validate:"required,min=3,max=60"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=admin manager staff viewer user"`
}

// UserService manages accounts and credential checks.
type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// Authenticate verifies a username/password pair. Unknown users and wrong
// passwords both map to the same credential error.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).
		Where("username = ?", strings.TrimSpace(username)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("user service: load: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return &user, nil
}

// Get loads one user by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("user service: load: %w", err)
	}
	return &user, nil
}

// Create registers a new account. Legacy role names are normalized before the
// row is stored, so a stored role is always one of the four known roles.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*UserDTO, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, apperrors.NewBadRequest("username is required")
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("user service: check username: %w", err)
	}
	if count > 0 {
		return nil, apperrors.NewConflict("username already taken")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	role := models.RoleStaff
	if strings.TrimSpace(input.Role) != "" {
		role = models.NormalizeRole(input.Role)
	}

	user := models.User{
		Username: username,
		Password: hashed,
		Role:     role,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("user service: create: %w", err)
	}

	dto := mapUser(user)
	return &dto, nil
}

// List returns every account, newest first.
func (s *UserService) List(ctx context.Context) ([]UserDTO, error) {
	ctx = ensureContext(ctx)

	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user service: list: %w", err)
	}

	items := make([]UserDTO, 0, len(users))
	for _, user := range users {
		items = append(items, mapUser(user))
	}
	return items, nil
}

func mapUser(user models.User) UserDTO {
	return UserDTO{
		ID:       user.ID,
		Username: user.Username,
		Role:     models.NormalizeRole(user.Role),
	}
}
