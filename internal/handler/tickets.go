package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"lottofun/internal/models"
	"lottofun/internal/repository"
	"lottofun/internal/service"
)

type TicketHandler struct {
	Tickets *service.TicketService
}

func (h *TicketHandler) Register(r *gin.Engine, auth gin.HandlerFunc) {
	g := r.Group("/api/tickets", auth)
	g.POST("", h.purchase)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.POST("/:id/claim", h.claim)
}

type purchaseRequest struct {
	SelectedNumbers []int `json:"selected_numbers" binding:"required"`
}

func (h *TicketHandler) purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	ticket, err := h.Tickets.Purchase(c.Request.Context(), authUserID(c), req.SelectedNumbers)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, ticket, nil)
}

func (h *TicketHandler) list(c *gin.Context) {
	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)
	params := repository.ListTicketsParams{
		UserID: authUserID(c),
		Limit:  limit,
		Offset: offset,
	}
	if id := uint64Query(c, "draw_id"); id > 0 {
		params.DrawID = &id
	}
	switch strings.ToLower(strings.TrimSpace(c.Query("filter"))) {
	case "winning":
		params.Statuses = []models.TicketStatus{models.TicketWon, models.TicketClaimed}
	case "claimable":
		params.Statuses = []models.TicketStatus{models.TicketWon}
	}
	tickets, total, err := h.Tickets.ListUserTickets(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, tickets, paginationMeta(limit, offset, total))
}

func (h *TicketHandler) detail(c *gin.Context) {
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	ticket, err := h.Tickets.Detail(c.Request.Context(), authUserID(c), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, ticket, nil)
}

func (h *TicketHandler) claim(c *gin.Context) {
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	ticket, user, err := h.Tickets.Claim(c.Request.Context(), authUserID(c), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{
		"ticket":  ticket,
		"balance": user.Balance,
	}, nil)
}

func uint64Query(c *gin.Context, key string) uint64 {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
