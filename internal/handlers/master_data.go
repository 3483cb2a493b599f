package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/altynaay/fieldops/internal/services"
	"github.com/altynaay/fieldops/pkg/errors"
	"github.com/altynaay/fieldops/pkg/response"
)

// MasterDataHandler manages the lookup lists behind form dropdowns.
type MasterDataHandler struct {
	masterData *services.MasterDataService
}

func NewMasterDataHandler(masterData *services.MasterDataService) *MasterDataHandler {
	return &MasterDataHandler{masterData: masterData}
}

// GET /api/master-data
func (h *MasterDataHandler) List(c *gin.Context) {
	items, err := h.masterData.List(requestContext(c), c.Query("category"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// POST /api/master-data
func (h *MasterDataHandler) Create(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var input services.MasterDataInput
	if !bindAndValidate(c, &input) {
		return
	}

	item, err := h.masterData.Create(requestContext(c), input, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, item)
}

// PUT /api/master-data/:id
func (h *MasterDataHandler) Update(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var input services.MasterDataInput
	if !bindAndValidate(c, &input) {
		return
	}

	item, err := h.masterData.Update(requestContext(c), c.Param("id"), input, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// DELETE /api/master-data/:id
func (h *MasterDataHandler) Delete(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id := c.Param("id")
	if err := h.masterData.Delete(requestContext(c), id, actor); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted_id": id})
}
