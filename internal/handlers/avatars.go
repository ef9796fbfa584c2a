package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"avatarsvc/internal/middleware"
	"avatarsvc/internal/models"
)

const entityName = "avatar"

func alert(c *gin.Context, action string, id int64) {
	c.Header(middleware.AlertHeader, fmt.Sprintf("avatarsvc.%s.%s", entityName, action))
	c.Header(middleware.AlertParamsHeader, strconv.FormatInt(id, 10))
}

// checkRecord returns the reason code of an incomplete record, or "".
func checkRecord(avatar models.Avatar) (string, string) {
	if strings.TrimSpace(avatar.Username) == "" {
		return "username_required", "username is required"
	}
	if avatar.Image == nil || strings.TrimSpace(avatar.ImageContentType) == "" {
		return "image_required", "image and imageContentType are required"
	}
	return "", ""
}

func (h HandlerSet) CreateAvatar(c *gin.Context) {
	var avatar models.Avatar
	if err := c.ShouldBindJSON(&avatar); err != nil {
		badRequest(c, "invalid_json", err.Error())
		return
	}
	if avatar.ID != nil {
		badRequest(c, "idexists", "a new avatar cannot already have an id")
		return
	}
	if code, msg := checkRecord(avatar); code != "" {
		badRequest(c, code, msg)
		return
	}

	created, err := h.avatars.Save(c.Request.Context(), avatar)
	if err != nil {
		h.writeError(c, err)
		return
	}

	alert(c, "created", *created.ID)
	c.Header("Location", fmt.Sprintf("/api/avatars/%d", *created.ID))
	c.JSON(http.StatusCreated, created)
}

func (h HandlerSet) UpdateAvatar(c *gin.Context) {
	var avatar models.Avatar
	if err := c.ShouldBindJSON(&avatar); err != nil {
		badRequest(c, "invalid_json", err.Error())
		return
	}
	if avatar.ID == nil {
		badRequest(c, "idnull", "invalid id")
		return
	}
	if code, msg := checkRecord(avatar); code != "" {
		badRequest(c, code, msg)
		return
	}

	updated, err := h.avatars.Save(c.Request.Context(), avatar)
	if err != nil {
		h.writeError(c, err)
		return
	}

	alert(c, "updated", *updated.ID)
	c.JSON(http.StatusOK, updated)
}

func (h HandlerSet) ListAvatars(c *gin.Context) {
	avatars, err := h.avatars.FindAll(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if avatars == nil {
		avatars = []models.Avatar{}
	}
	c.JSON(http.StatusOK, avatars)
}

func (h HandlerSet) GetAvatar(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	avatar, found, err := h.avatars.FindOne(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, avatar)
}

func (h HandlerSet) DeleteAvatar(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.avatars.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	alert(c, "deleted", id)
	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid_id", "id must be an integer")
		return 0, false
	}
	return id, true
}
