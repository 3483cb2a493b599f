package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/altynaay/fieldops/internal/services"
	"github.com/altynaay/fieldops/pkg/response"
)

// UserHandler exposes account administration.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	items, err := h.users.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	var req services.CreateUserInput
	if !bindAndValidate(c, &req) {
		return
	}

	item, err := h.users.Create(requestContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, item)
}
