package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/civicfix/civicfix-api/internal/middleware"
	"github.com/civicfix/civicfix-api/internal/models"
)

func authFromContext(c *gin.Context) *models.AuthContext {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	auth, ok := value.(*models.AuthContext)
	if !ok {
		return nil
	}
	return auth
}
