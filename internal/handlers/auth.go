package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/altynaay/fieldops/internal/auth"
	"github.com/altynaay/fieldops/internal/models"
	"github.com/altynaay/fieldops/internal/services"
	"github.com/altynaay/fieldops/pkg/errors"
	"github.com/altynaay/fieldops/pkg/response"
)

// AuthHandler manages login and identity lookup.
type AuthHandler struct {
	users *services.UserService
	jwt   *iauth.JWTService
}

func NewAuthHandler(users *services.UserService, jwt *iauth.JWTService) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken string           `json:"access_token"`
	User        services.UserDTO `json:"user"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), req.Username, req.Password)
	if err != nil {
		// Normalise auth errors to 401
		response.Error(c, errors.ErrInvalidCredentials)
		return
	}

	role := models.NormalizeRole(user.Role)
	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:   user.ID,
		Username: user.Username,
		Role:     role,
	})
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, loginResponse{
		AccessToken: token,
		User: services.UserDTO{
			ID:       user.ID,
			Username: user.Username,
			Role:     role,
		},
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.Get(requestContext(c), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, services.UserDTO{
		ID:       user.ID,
		Username: user.Username,
		Role:     models.NormalizeRole(user.Role),
	})
}
