package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/carnet-api/internal/middleware"
	"github.com/noah-isme/carnet-api/internal/models"
	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
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

func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}

func requestIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Validation("invalid request id", map[string]string{"id": "must be a positive integer"})
	}
	return id, nil
}
