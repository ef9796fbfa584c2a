package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"avatarsvc/internal/config"
	"avatarsvc/internal/middleware"
	"avatarsvc/internal/models"
	"avatarsvc/internal/service"
	"avatarsvc/internal/settings"
)

//go:generate mockgen -destination=mock_handlers_test.go -package=handlers . Avatars,Settings

// Avatars is the part of service.AvatarService the HTTP layer uses.
type Avatars interface {
	Resolve(ctx context.Context, userID string) (service.ImageResult, error)
	Upload(ctx context.Context, userID string, image []byte, contentType string) error
	DeleteByUsername(ctx context.Context, username string) error
	Save(ctx context.Context, avatar models.Avatar) (models.Avatar, error)
	FindAll(ctx context.Context) ([]models.Avatar, error)
	FindOne(ctx context.Context, id int64) (models.Avatar, bool, error)
	Delete(ctx context.Context, id int64) error
}

type Settings interface {
	Snapshot(ctx context.Context) (models.AvatarSettings, error)
	Update(ctx context.Context, patch settings.Patch) (models.AvatarSettings, error)
	Reset(ctx context.Context) (models.AvatarSettings, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthChecks struct {
	Database Pinger
	Cache    Pinger
	Storage  Pinger
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	avatars  Avatars
	settings Settings
	health   HealthChecks
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, avatars Avatars, settings Settings, health HealthChecks) HandlerSet {
	return HandlerSet{
		log:      log,
		cfg:      cfg,
		avatars:  avatars,
		settings: settings,
		health:   health,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	api := router.Group("")
	api.Use(middleware.Auth(h.cfg.Security.JWTSecret))

	images := api.Group("/avatars/image")
	{
		images.POST("/currentUser", h.UploadCurrentUserImage)
		images.GET("/currentUser", h.GetCurrentUserImage)
		images.POST("/:userId", h.UploadImage)
		images.GET("/:userId", h.GetImage)
		images.DELETE("/:userId", h.DeleteImage)
	}

	api.GET("/avatars/config", h.GetSettings)
	admin := api.Group("/avatars/config")
	admin.Use(middleware.RequireRoles(h.cfg.Security.AdminRole))
	admin.PUT("", h.UpdateSettings)
	admin.DELETE("", h.ResetSettings)

	avatars := api.Group("/avatars")
	{
		avatars.POST("", h.CreateAvatar)
		avatars.PUT("", h.UpdateAvatar)
		avatars.GET("", h.ListAvatars)
		avatars.GET("/:id", h.GetAvatar)
		avatars.DELETE("/:id", h.DeleteAvatar)
	}
}
