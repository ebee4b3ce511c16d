package handler

import (
	"github.com/gin-gonic/gin"

	"lottofun/internal/service"
)

type UserHandler struct {
	Users *service.UserService
}

func (h *UserHandler) Register(r *gin.Engine, auth gin.HandlerFunc) {
	g := r.Group("/api/users", auth)
	g.GET("/me", h.profile)
}

func (h *UserHandler) profile(c *gin.Context) {
	user, err := h.Users.Profile(c.Request.Context(), authUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, user, nil)
}
