package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"avatarsvc/internal/service"
	"avatarsvc/internal/settings"
)

// writeError maps service errors to a status. Anything unexpected is logged
// and reported as 500 without details.
func (h HandlerSet) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUploadFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload", "message": err.Error()})
	case errors.Is(err, service.ErrInvalidArgument), errors.Is(err, settings.ErrInvalidSettings):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "message": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		h.log.Error().Err(err).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
	}
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": code, "message": message})
}
