package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lottofun/internal/models"
	"lottofun/internal/repository"
	"lottofun/internal/service"
)

type DrawHandler struct {
	Draws *service.DrawService
}

func (h *DrawHandler) Register(r *gin.Engine, auth gin.HandlerFunc) {
	g := r.Group("/api/draws", auth)
	g.GET("", h.list)
	g.GET("/active", h.active)
	g.GET("/:id", h.get)
}

func (h *DrawHandler) active(c *gin.Context) {
	draw, err := h.Draws.ActiveDraw(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, draw, nil)
}

func (h *DrawHandler) list(c *gin.Context) {
	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)
	params := repository.ListDrawsParams{
		Limit:  limit,
		Offset: offset,
		Asc:    strings.EqualFold(c.Query("order"), "asc"),
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		status := models.DrawStatus(strings.ToUpper(v))
		params.Status = &status
	}
	draws, total, err := h.Draws.ListDraws(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, draws, paginationMeta(limit, offset, total))
}

func (h *DrawHandler) get(c *gin.Context) {
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	draw, err := h.Draws.GetDraw(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, draw, nil)
}
