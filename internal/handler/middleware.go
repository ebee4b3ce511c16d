package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lottofun/internal/service"
)

const ctxUserID = "auth_user_id"

// AuthRequired validates the bearer token and stores the caller's user ID on
// the request context.
func AuthRequired(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			Error(c, http.StatusUnauthorized, "missing bearer token", nil)
			c.Abort()
			return
		}
		userID, err := auth.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			Error(c, http.StatusUnauthorized, "invalid token", nil)
			c.Abort()
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func authUserID(c *gin.Context) uint64 {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0
	}
	id, ok := v.(uint64)
	if !ok {
		return 0
	}
	return id
}
