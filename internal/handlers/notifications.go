package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/altynaay/fieldops/internal/database"
	"github.com/altynaay/fieldops/internal/notifications"
	"github.com/altynaay/fieldops/internal/services"
	"github.com/altynaay/fieldops/pkg/errors"
	"github.com/altynaay/fieldops/pkg/response"
)

// NotificationHandler exposes the inbox, the live stream and the rule
// engine's settings and manual trigger.
type NotificationHandler struct {
	db            *gorm.DB
	notifications *services.NotificationService
	hub           *notifications.Hub
	rules         *services.RuleEngine
}

func NewNotificationHandler(db *gorm.DB, svc *services.NotificationService, hub *notifications.Hub, rules *services.RuleEngine) *NotificationHandler {
	return &NotificationHandler{db: db, notifications: svc, hub: hub, rules: rules}
}

// GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	items, unread, err := h.notifications.ListForUser(
		requestContext(c), actor.ID, parseBoolQuery(c, "unread"), parseIntQuery(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"items":  items,
		"unread": unread,
	})
}

// POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.notifications.MarkRead(requestContext(c), actor.ID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"read": true})
}

// GET /api/notifications/stream
func (h *NotificationHandler) Stream(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	h.hub.Serve(actor.ID, c.Writer, c.Request)
}

type ruleSettings struct {
	OverdueEnabled        bool `json:"overdue_enabled"`
	UnassignedEnabled     bool `json:"unassigned_enabled"`
	HighPriorityEnabled   bool `json:"high_priority_enabled"`
	HighPriorityThreshold int  `json:"high_priority_threshold"`
	OverdueDays           int  `json:"overdue_days"`
}

// GET /api/notifications/rules
func (h *NotificationHandler) GetRules(c *gin.Context) {
	values, err := database.GetSystemSettings(requestContext(c), h.db,
		database.SettingRuleOverdueEnabled,
		database.SettingRuleUnassignedEnabled,
		database.SettingRuleHighPriorityEnabled,
		database.SettingHighPriorityThreshold,
		database.SettingOverdueDays,
	)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, ruleSettings{
		OverdueEnabled:        database.SettingBool(values, database.SettingRuleOverdueEnabled, true),
		UnassignedEnabled:     database.SettingBool(values, database.SettingRuleUnassignedEnabled, true),
		HighPriorityEnabled:   database.SettingBool(values, database.SettingRuleHighPriorityEnabled, true),
		HighPriorityThreshold: database.SettingInt(values, database.SettingHighPriorityThreshold, 5),
		OverdueDays:           database.SettingInt(values, database.SettingOverdueDays, 0),
	})
}

type updateRulesRequest struct {
	OverdueEnabled        *bool `json:"overdue_enabled"`
	UnassignedEnabled     *bool `json:"unassigned_enabled"`
	HighPriorityEnabled   *bool `json:"high_priority_enabled"`
	HighPriorityThreshold *int  `json:"high_priority_threshold" validate:"omitempty,min=1,max=1000"`
	OverdueDays           *int  `json:"overdue_days" validate:"omitempty,min=0,max=365"`
}

// PUT /api/notifications/rules
func (h *NotificationHandler) UpdateRules(c *gin.Context) {
	var req updateRulesRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	updates := map[string]*string{}
	if req.OverdueEnabled != nil {
		updates[database.SettingRuleOverdueEnabled] = boolSetting(*req.OverdueEnabled)
	}
	if req.UnassignedEnabled != nil {
		updates[database.SettingRuleUnassignedEnabled] = boolSetting(*req.UnassignedEnabled)
	}
	if req.HighPriorityEnabled != nil {
		updates[database.SettingRuleHighPriorityEnabled] = boolSetting(*req.HighPriorityEnabled)
	}
	if req.HighPriorityThreshold != nil {
		updates[database.SettingHighPriorityThreshold] = intSetting(*req.HighPriorityThreshold)
	}
	if req.OverdueDays != nil {
		updates[database.SettingOverdueDays] = intSetting(*req.OverdueDays)
	}

	for key, value := range updates {
		if err := database.UpsertSystemSetting(ctx, h.db, key, *value); err != nil {
			response.Error(c, err)
			return
		}
	}

	h.GetRules(c)
}

// POST /api/notifications/rules/run
func (h *NotificationHandler) RunRules(c *gin.Context) {
	created, err := h.rules.RunOnce(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"created": created})
}

func boolSetting(value bool) *string {
	s := "false"
	if value {
		s = "true"
	}
	return &s
}

func intSetting(value int) *string {
	s := strconv.Itoa(value)
	return &s
}
