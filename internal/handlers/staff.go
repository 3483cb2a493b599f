package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/altynaay/fieldops/internal/services"
	"github.com/altynaay/fieldops/pkg/response"
)

// StaffHandler exposes the staff roster.
type StaffHandler struct {
	staff *services.StaffService
}

func NewStaffHandler(staff *services.StaffService) *StaffHandler {
	return &StaffHandler{staff: staff}
}

// GET /api/staff
func (h *StaffHandler) List(c *gin.Context) {
	items, err := h.staff.List(requestContext(c), parseBoolQuery(c, "active"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// POST /api/staff
func (h *StaffHandler) Create(c *gin.Context) {
	var req services.CreateStaffInput
	if !bindAndValidate(c, &req) {
		return
	}

	item, err := h.staff.Create(requestContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, item)
}

// PUT /api/staff/:id
func (h *StaffHandler) Update(c *gin.Context) {
	var req services.UpdateStaffInput
	if !bindAndValidate(c, &req) {
		return
	}

	item, err := h.staff.Update(requestContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}
