package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/altynaay/fieldops/internal/services"
	"github.com/altynaay/fieldops/pkg/errors"
	"github.com/altynaay/fieldops/pkg/response"
)

// AuditHandler exposes the audit trail and the undo operation.
type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 20)

	items, total, err := h.audit.List(requestContext(c), page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages(total, perPage),
	})
}

// POST /api/audit/:id/undo
func (h *AuditHandler) Undo(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	result, err := h.audit.Undo(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
