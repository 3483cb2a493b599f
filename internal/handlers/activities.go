package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/altynaay/fieldops/internal/services"
	"github.com/altynaay/fieldops/pkg/errors"
	"github.com/altynaay/fieldops/pkg/response"
)

// ActivityHandler exposes activity CRUD, bulk actions and reordering.
type ActivityHandler struct {
	activities *services.ActivityService
}

func NewActivityHandler(activities *services.ActivityService) *ActivityHandler {
	return &ActivityHandler{activities: activities}
}

// GET /api/activities
func (h *ActivityHandler) List(c *gin.Context) {
	input := services.ListActivitiesInput{
		Search:       c.Query("search"),
		Status:       c.Query("status"),
		StaffID:      c.Query("staff_id"),
		CustomerName: c.Query("customer"),
		Location:     c.Query("location"),
		DateFrom:     c.Query("date_from"),
		DateTo:       c.Query("date_to"),
		Page:         parseIntQuery(c, "page", 1),
		PerPage:      parseIntQuery(c, "per_page", 20),
	}

	items, total, err := h.activities.List(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Page:       input.Page,
		PerPage:    input.PerPage,
		Total:      int(total),
		TotalPages: totalPages(total, input.PerPage),
	})
}

// GET /api/activities/:id
func (h *ActivityHandler) Get(c *gin.Context) {
	item, err := h.activities.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// POST /api/activities
func (h *ActivityHandler) Create(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req services.CreateActivityInput
	if !bindAndValidate(c, &req) {
		return
	}

	item, err := h.activities.Create(requestContext(c), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, item)
}

// PUT /api/activities/:id
func (h *ActivityHandler) Update(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req services.UpdateActivityInput
	if !bindAndValidate(c, &req) {
		return
	}

	item, err := h.activities.Update(requestContext(c), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// DELETE /api/activities/:id
func (h *ActivityHandler) Delete(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.activities.Delete(requestContext(c), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/activities/:id/done
func (h *ActivityHandler) MarkDone(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	item, err := h.activities.MarkDone(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

type reorderRequest struct {
	ActivityIDs []string `json:"activity_ids" validate:"required,min=1"`
}

// POST /api/activities/reorder
func (h *ActivityHandler) Reorder(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req reorderRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.activities.Reorder(requestContext(c), req.ActivityIDs, actor); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reordered": true})
}

// POST /api/activities/bulk
func (h *ActivityHandler) Bulk(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req services.BulkActivityInput
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.activities.Bulk(requestContext(c), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
