package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"avatarsvc/internal/middleware"
	"avatarsvc/internal/service"
)

const uploadField = "data"

func (h HandlerSet) UploadImage(c *gin.Context) {
	h.upload(c, c.Param("userId"))
}

func (h HandlerSet) UploadCurrentUserImage(c *gin.Context) {
	principal, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	h.upload(c, principal.Username)
}

func (h HandlerSet) upload(c *gin.Context, userID string) {
	header, err := c.FormFile(uploadField)
	if err != nil {
		badRequest(c, "image_required", "multipart field \""+uploadField+"\" is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer file.Close()

	// One byte over the limit is enough for the service to reject it.
	data, err := io.ReadAll(io.LimitReader(file, h.cfg.Avatar.MaxSizeBytes+1))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.avatars.Upload(c.Request.Context(), userID, data, header.Header.Get("Content-Type")); err != nil {
		h.log.Warn().Err(err).Str("user", userID).Msg("avatar upload rejected")
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

func (h HandlerSet) GetImage(c *gin.Context) {
	h.serveImage(c, c.Param("userId"))
}

func (h HandlerSet) GetCurrentUserImage(c *gin.Context) {
	principal, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	h.serveImage(c, principal.Username)
}

func (h HandlerSet) serveImage(c *gin.Context, userID string) {
	res, err := h.avatars.Resolve(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer res.Close()

	if res.Kind == service.ImageNotFound {
		c.Status(res.Status)
		return
	}

	contentType := strings.TrimSpace(res.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := res.Size
	if size < 0 {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, contentType, res.Body, nil)
}

// DeleteImage removes every avatar of the user and answers 204 whether or not
// there was one.
func (h HandlerSet) DeleteImage(c *gin.Context) {
	if err := h.avatars.DeleteByUsername(c.Request.Context(), c.Param("userId")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
