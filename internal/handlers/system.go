package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/altynaay/fieldops/internal/backup"
	"github.com/altynaay/fieldops/pkg/response"
)

// SystemHandler exposes backup management.
type SystemHandler struct {
	backups *backup.Service
}

func NewSystemHandler(backups *backup.Service) *SystemHandler {
	return &SystemHandler{backups: backups}
}

// GET /api/system/backups
func (h *SystemHandler) ListBackups(c *gin.Context) {
	items, err := h.backups.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// POST /api/system/backups
func (h *SystemHandler) CreateBackup(c *gin.Context) {
	info, err := h.backups.Rotate(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, info)
}

type restoreRequest struct {
	Name string `json:"name" validate:"required"`
}

// POST /api/system/backups/restore
func (h *SystemHandler) RestoreBackup(c *gin.Context) {
	var req restoreRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.backups.Restore(requestContext(c), req.Name); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"restored": req.Name})
}
