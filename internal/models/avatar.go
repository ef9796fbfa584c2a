package models

import (
	"fmt"
	"strings"
	"time"
)

type AvatarStyle string

const (
	AvatarStyleLocal    AvatarStyle = "LOCAL"
	AvatarStyleGravatar AvatarStyle = "GRAVATAR"
)

// ParseAvatarStyle accepts the style names case-insensitively.
func ParseAvatarStyle(s string) (AvatarStyle, error) {
	switch AvatarStyle(strings.ToUpper(strings.TrimSpace(s))) {
	case AvatarStyleLocal:
		return AvatarStyleLocal, nil
	case AvatarStyleGravatar:
		return AvatarStyleGravatar, nil
	default:
		return "", fmt.Errorf("unknown avatar style %q", s)
	}
}

// Avatar is the JSON record exposed by the CRUD endpoints. Image is encoded
// as base64 by encoding/json.
type Avatar struct {
	ID               *int64 `json:"id"`
	Username         string `json:"username"`
	Image            []byte `json:"image"`
	ImageContentType string `json:"imageContentType"`
}

// AvatarRow is the persisted form of an Avatar. The image bytes live in the
// object store under ImageKey.
type AvatarRow struct {
	ID               int64
	Username         string
	ImageKey         string
	ImageContentType string
	ImageSize        int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AvatarSettings is the runtime snapshot that drives image resolution.
type AvatarSettings struct {
	Style       AvatarStyle `json:"avatarStyle"`
	GravatarURL string      `json:"gravatarUrl"`
	ImageWidth  int         `json:"imageWidth"`
}
