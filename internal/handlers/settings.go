package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"avatarsvc/internal/settings"
)

func (h HandlerSet) GetSettings(c *gin.Context) {
	snapshot, err := h.settings.Snapshot(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// UpdateSettings overrides the fields present in the body. Absent fields keep
// their value.
func (h HandlerSet) UpdateSettings(c *gin.Context) {
	var patch settings.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid_json", err.Error())
		return
	}

	updated, err := h.settings.Update(c.Request.Context(), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.log.Info().
		Str("style", string(updated.Style)).
		Str("gravatar_url", updated.GravatarURL).
		Int("image_width", updated.ImageWidth).
		Msg("avatar settings updated")
	c.JSON(http.StatusOK, updated)
}

func (h HandlerSet) ResetSettings(c *gin.Context) {
	defaults, err := h.settings.Reset(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, defaults)
}
