// Package settings serves the runtime avatar settings. Startup defaults come
// from configuration; an operator can override them at runtime, and the
// overrides live in a Redis hash so every API instance sees the same values.
package settings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/redis/go-redis/v9"

	"avatarsvc/internal/config"
	"avatarsvc/internal/models"
)

const (
	DefaultKey = "avatar:settings"

	fieldStyle       = "style"
	fieldGravatarURL = "gravatarUrl"
	fieldImageWidth  = "imageWidth"

	MaxImageWidth = 2048
)

var ErrInvalidSettings = errors.New("invalid avatar settings")

// Patch carries the fields to override. Nil fields keep their current value.
type Patch struct {
	Style       *string `json:"avatarStyle"`
	GravatarURL *string `json:"gravatarUrl"`
	ImageWidth  *int    `json:"imageWidth"`
}

type Store struct {
	client   *redis.Client
	key      string
	defaults models.AvatarSettings
}

func NewStore(client *redis.Client, key string, cfg config.AvatarConfig) (*Store, error) {
	defaults, err := Defaults(cfg)
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key, defaults: defaults}, nil
}

// Defaults validates the configured settings.
func Defaults(cfg config.AvatarConfig) (models.AvatarSettings, error) {
	style, err := models.ParseAvatarStyle(cfg.Style)
	if err != nil {
		return models.AvatarSettings{}, fmt.Errorf("avatar.style: %w", err)
	}
	s := models.AvatarSettings{
		Style:       style,
		GravatarURL: cfg.GravatarURL,
		ImageWidth:  cfg.ImageWidth,
	}
	if err := validate(s); err != nil {
		return models.AvatarSettings{}, err
	}
	return s, nil
}

// Snapshot returns the defaults overlaid with the stored overrides. It is
// read on every call so an update takes effect on the next request.
func (s *Store) Snapshot(ctx context.Context) (models.AvatarSettings, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return models.AvatarSettings{}, fmt.Errorf("read avatar settings: %w", err)
	}
	return overlay(s.defaults, fields)
}

// Update validates patch against the current snapshot and stores it.
func (s *Store) Update(ctx context.Context, patch Patch) (models.AvatarSettings, error) {
	current, err := s.Snapshot(ctx)
	if err != nil {
		return models.AvatarSettings{}, err
	}

	next, fields, err := apply(current, patch)
	if err != nil {
		return models.AvatarSettings{}, err
	}
	if len(fields) == 0 {
		return current, nil
	}

	if err := s.client.HSet(ctx, s.key, fields).Err(); err != nil {
		return models.AvatarSettings{}, fmt.Errorf("write avatar settings: %w", err)
	}
	return next, nil
}

// Reset drops every override.
func (s *Store) Reset(ctx context.Context) (models.AvatarSettings, error) {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return models.AvatarSettings{}, fmt.Errorf("reset avatar settings: %w", err)
	}
	return s.defaults, nil
}

func overlay(base models.AvatarSettings, fields map[string]string) (models.AvatarSettings, error) {
	out := base
	if v, ok := fields[fieldStyle]; ok {
		style, err := models.ParseAvatarStyle(v)
		if err != nil {
			return models.AvatarSettings{}, fmt.Errorf("stored %s: %w", fieldStyle, err)
		}
		out.Style = style
	}
	if v, ok := fields[fieldGravatarURL]; ok {
		out.GravatarURL = v
	}
	if v, ok := fields[fieldImageWidth]; ok {
		width, err := strconv.Atoi(v)
		if err != nil {
			return models.AvatarSettings{}, fmt.Errorf("stored %s: %w", fieldImageWidth, err)
		}
		out.ImageWidth = width
	}
	return out, nil
}

func apply(current models.AvatarSettings, patch Patch) (models.AvatarSettings, map[string]any, error) {
	next := current
	fields := make(map[string]any, 3)

	if patch.Style != nil {
		style, err := models.ParseAvatarStyle(*patch.Style)
		if err != nil {
			return models.AvatarSettings{}, nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
		next.Style = style
		fields[fieldStyle] = string(style)
	}
	if patch.GravatarURL != nil {
		next.GravatarURL = *patch.GravatarURL
		fields[fieldGravatarURL] = *patch.GravatarURL
	}
	if patch.ImageWidth != nil {
		next.ImageWidth = *patch.ImageWidth
		fields[fieldImageWidth] = strconv.Itoa(*patch.ImageWidth)
	}

	if err := validate(next); err != nil {
		return models.AvatarSettings{}, nil, err
	}
	return next, fields, nil
}

func validate(s models.AvatarSettings) error {
	u, err := url.Parse(s.GravatarURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: gravatar url %q must be an absolute http(s) url", ErrInvalidSettings, s.GravatarURL)
	}
	if s.ImageWidth < 1 || s.ImageWidth > MaxImageWidth {
		return fmt.Errorf("%w: image width %d out of range 1..%d", ErrInvalidSettings, s.ImageWidth, MaxImageWidth)
	}
	return nil
}
