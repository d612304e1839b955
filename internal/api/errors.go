package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"collegeattend/internal/attendance"
	"collegeattend/internal/logging"
)

type errorMapping struct {
	target error
	status int
	code   string
	// detail exposes the wrapped message instead of the sentinel's.
	detail bool
}

var errorMappings = []errorMapping{
	{attendance.ErrMalformed, http.StatusBadRequest, "INVALID_QR", false},
	{attendance.ErrInvalid, http.StatusBadRequest, "INVALID_REQUEST", true},
	{attendance.ErrSessionClosed, http.StatusBadRequest, "SESSION_CLOSED", false},
	{attendance.ErrSessionExpired, http.StatusBadRequest, "SESSION_EXPIRED", false},
	{attendance.ErrAlreadyMarked, http.StatusBadRequest, "ALREADY_MARKED", false},
	{attendance.ErrNotFound, http.StatusNotFound, "NOT_FOUND", true},
	{attendance.ErrForbidden, http.StatusForbidden, "FORBIDDEN", false},
	{attendance.ErrNotEnrolled, http.StatusForbidden, "NOT_ENROLLED", false},
	{attendance.ErrTransient, http.StatusServiceUnavailable, "UNAVAILABLE", false},
}

// writeError renders err as {"error", "code"} with the status of its category.
func writeError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.target.Error()
		if m.detail {
			msg = err.Error()
		}
		if m.status == http.StatusServiceUnavailable {
			c.Header("Retry-After", "5")
			logging.Ctx(c.Request.Context()).Warn().Err(err).Str("path", c.FullPath()).Msg("store unavailable")
		}
		c.AbortWithStatusJSON(m.status, gin.H{"error": msg, "code": m.code})
		return
	}
	_ = c.Error(err)
	logging.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "INTERNAL"})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": "INVALID_REQUEST"})
}
