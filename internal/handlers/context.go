package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	iauth "github.com/altynaay/fieldops/internal/auth"
	"github.com/altynaay/fieldops/internal/middleware"
	"github.com/altynaay/fieldops/internal/models"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUser rebuilds the acting user from the validated token claims. The
// audit trail stores the actor id; a stale username in an old token only
// affects notification wording.
func currentUser(c *gin.Context) *models.User {
	value, ok := c.Get(middleware.CtxClaimsKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*iauth.Claims)
	if !ok || claims.UserID == "" {
		return nil
	}

	return &models.User{
		BaseModel: models.BaseModel{ID: claims.UserID},
		Username:  claims.Username,
		Role:      models.NormalizeRole(claims.Role),
	}
}
