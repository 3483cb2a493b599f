package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/altynaay/fieldops/internal/models"
	"github.com/altynaay/fieldops/internal/notifications"
	apperrors "github.com/altynaay/fieldops/pkg/errors"
)

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID         string     `json:"id"`
	ActivityID *string    `json:"activity_id"`
	Type       string     `json:"type"`
	Text       string     `json:"text"`
	ReadAt     *time.Time `json:"read_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NotificationService manages user inbox entries and live delivery.
type NotificationService struct {
	db  *gorm.DB
	hub *notifications.Hub
}

// NewNotificationService constructs a NotificationService. The hub is
// optional; without it notifications are persisted but not pushed.
func NewNotificationService(db *gorm.DB, hub *notifications.Hub) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db, hub: hub}, nil
}

// ListForUser returns the newest notifications for a user plus the unread count.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]NotificationDTO, int64, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, 0, errors.New("notification service: user id is required")
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var rows []models.Notification
	if err := query.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: list: %w", err)
	}

	var unread int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&unread).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: unread count: %w", err)
	}

	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items, unread, nil
}

// MarkRead stamps the read time on an unread notification owned by the user.
// Marking an already-read notification again is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)

	var row models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("notification service: load: %w", err)
	}

	if row.ReadAt != nil {
		return nil
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&row).Update("read_at", now).Error; err != nil {
		return fmt.Errorf("notification service: mark read: %w", err)
	}
	return nil
}

// BroadcastAll persists one notification per user and then pushes the event
// to every live connection. The rows are committed before any push so a
// subscriber that receives the event can immediately query durable state.
func (s *NotificationService) BroadcastAll(ctx context.Context, eventType, text string, activityID *string) error {
	ctx = ensureContext(ctx)

	var users []models.User
	if err := s.db.WithContext(ctx).Find(&users).Error; err != nil {
		return fmt.Errorf("notification service: load users: %w", err)
	}
	if len(users) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, user := range users {
			note := models.Notification{
				UserID:     user.ID,
				ActivityID: activityID,
				Type:       eventType,
				Text:       text,
			}
			if err := tx.Create(&note).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("notification service: broadcast: %w", err)
	}

	if s.hub != nil {
		event := notifications.Event{
			Type:       eventType,
			Text:       text,
			ActivityID: activityID,
			CreatedAt:  time.Now().UTC(),
		}
		for _, user := range users {
			s.hub.Push(user.ID, event)
		}
	}

	return nil
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:         row.ID,
		ActivityID: row.ActivityID,
		Type:       row.Type,
		Text:       row.Text,
		ReadAt:     row.ReadAt,
		CreatedAt:  row.CreatedAt,
	}
}
