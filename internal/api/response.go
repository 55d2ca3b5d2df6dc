package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/veritasvoid/TradeZen/internal/errs"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Ok writes a successful envelope.
func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

// Error writes a failure envelope.
func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// statusOf maps the error taxonomy onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrAuthDenied):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrRemoteUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// remoteError reports a failed remote call. The server stays usable; the
// client decides whether to retry.
func remoteError(c *gin.Context, err error) {
	Error(c, statusOf(err), err.Error(), nil)
}
