package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kosen-dev/timetable-api/internal/middleware"
	"github.com/kosen-dev/timetable-api/internal/models"
	appErrors "github.com/kosen-dev/timetable-api/pkg/errors"
	"github.com/kosen-dev/timetable-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requestMeta captures the caller's address and agent for audit records.
func requestMeta(c *gin.Context) models.LoginRequest {
	return models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

// requireClaims returns the authenticated claims or writes a 401 and
// reports false. Handlers behind the JWT middleware still call this in
// case a route is ever registered without it.
func requireClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}
