package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/altynaay/fieldops/pkg/response"
)

// HealthHandler reports process and database liveness.
type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	status := "ok"
	dbStatus := "ok"

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(requestContext(c)) != nil {
		status = "degraded"
		dbStatus = "unreachable"
	}

	response.Success(c, http.StatusOK, gin.H{
		"status":   status,
		"database": dbStatus,
	})
}
