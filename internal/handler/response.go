package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"lottofun/internal/apperr"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail maps service errors to HTTP statuses. Invalid-state errors are
// deliberately reported as plain internal errors: they signal a scheduler or
// locking bug, not something the caller can fix.
func Fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, apperr.ErrInvalidCredentials):
		Error(c, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrNoActiveDraw):
		Error(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, apperr.ErrDuplicateTicket), errors.Is(err, apperr.ErrEmailTaken):
		Error(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, apperr.ErrDrawNotAccepting),
		errors.Is(err, apperr.ErrInsufficientBalance),
		errors.Is(err, apperr.ErrNotClaimable):
		Error(c, http.StatusUnprocessableEntity, err.Error(), nil)
	default:
		Error(c, http.StatusInternalServerError, "internal error", nil)
	}
}

func paginationMeta(limit, offset int, total int64) map[string]any {
	return map[string]any{
		"limit":  limit,
		"offset": offset,
		"total":  total,
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func uint64Param(c *gin.Context, key string) uint64 {
	v := strings.TrimSpace(c.Param(key))
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
