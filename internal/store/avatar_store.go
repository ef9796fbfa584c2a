// Package store keeps avatar records in Postgres and their image bytes in the
// object store. Every write puts the bytes under a fresh key first, then
// commits the row; replaced objects are removed after the commit.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"avatarsvc/internal/ids"
	"avatarsvc/internal/models"
	"avatarsvc/internal/repository"
)

// ErrNotFound is returned when no record matches an id or username.
var ErrNotFound = errors.New("avatar not found")

const keyPrefix = "avatars/"

//go:generate mockgen -destination=../../mocks/store_mocks.go -package=mocks . Rows,Objects,Purger

type Rows interface {
	Insert(ctx context.Context, avatar models.AvatarRow) (models.AvatarRow, error)
	ReplaceByUsername(ctx context.Context, avatar models.AvatarRow) (models.AvatarRow, []string, error)
	Update(ctx context.Context, avatar models.AvatarRow) (models.AvatarRow, string, error)
	GetByID(ctx context.Context, id int64) (models.AvatarRow, error)
	LatestByUsername(ctx context.Context, username string) (models.AvatarRow, error)
	List(ctx context.Context) ([]models.AvatarRow, error)
	DeleteByID(ctx context.Context, id int64) (string, error)
	DeleteByUsername(ctx context.Context, username string) ([]string, error)
}

type Objects interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
}

type Purger interface {
	EnqueuePurge(ctx context.Context, key string) error
}

type AvatarStore struct {
	rows    Rows
	objects Objects
	purger  Purger
	log     zerolog.Logger
}

func New(rows Rows, objects Objects, purger Purger, log zerolog.Logger) *AvatarStore {
	return &AvatarStore{
		rows:    rows,
		objects: objects,
		purger:  purger,
		log:     log,
	}
}

// KeyPrefix is the object key prefix of every avatar image.
func KeyPrefix() string {
	return keyPrefix
}

func (s *AvatarStore) Create(ctx context.Context, avatar models.Avatar) (models.Avatar, error) {
	row, err := s.putImage(ctx, avatar)
	if err != nil {
		return models.Avatar{}, err
	}

	created, err := s.rows.Insert(ctx, row)
	if err != nil {
		s.discard(ctx, row.ImageKey)
		return models.Avatar{}, err
	}
	return toAvatar(created, avatar.Image), nil
}

// ReplaceByUsername makes avatar the only record of its username.
func (s *AvatarStore) ReplaceByUsername(ctx context.Context, avatar models.Avatar) (models.Avatar, error) {
	row, err := s.putImage(ctx, avatar)
	if err != nil {
		return models.Avatar{}, err
	}

	created, removed, err := s.rows.ReplaceByUsername(ctx, row)
	if err != nil {
		s.discard(ctx, row.ImageKey)
		return models.Avatar{}, err
	}
	s.discard(ctx, removed...)
	return toAvatar(created, avatar.Image), nil
}

func (s *AvatarStore) Update(ctx context.Context, avatar models.Avatar) (models.Avatar, error) {
	if avatar.ID == nil {
		return models.Avatar{}, errors.New("update avatar: missing id")
	}

	row, err := s.putImage(ctx, avatar)
	if err != nil {
		return models.Avatar{}, err
	}
	row.ID = *avatar.ID

	updated, oldKey, err := s.rows.Update(ctx, row)
	if err != nil {
		s.discard(ctx, row.ImageKey)
		if errors.Is(err, repository.ErrAvatarNotFound) {
			return models.Avatar{}, fmt.Errorf("avatar %d: %w", *avatar.ID, ErrNotFound)
		}
		return models.Avatar{}, err
	}
	s.discard(ctx, oldKey)
	return toAvatar(updated, avatar.Image), nil
}

func (s *AvatarStore) FindByID(ctx context.Context, id int64) (models.Avatar, error) {
	row, err := s.rows.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAvatarNotFound) {
			return models.Avatar{}, fmt.Errorf("avatar %d: %w", id, ErrNotFound)
		}
		return models.Avatar{}, err
	}
	return s.load(ctx, row)
}

// FindByUsername returns the most recent record of username.
func (s *AvatarStore) FindByUsername(ctx context.Context, username string) (models.Avatar, error) {
	row, err := s.rows.LatestByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrAvatarNotFound) {
			return models.Avatar{}, fmt.Errorf("avatar of %s: %w", username, ErrNotFound)
		}
		return models.Avatar{}, err
	}
	return s.load(ctx, row)
}

func (s *AvatarStore) FindAll(ctx context.Context) ([]models.Avatar, error) {
	rows, err := s.rows.List(ctx)
	if err != nil {
		return nil, err
	}

	avatars := make([]models.Avatar, 0, len(rows))
	for _, row := range rows {
		avatar, err := s.load(ctx, row)
		if err != nil {
			return nil, err
		}
		avatars = append(avatars, avatar)
	}
	return avatars, nil
}

// DeleteByID removes the record and its image. A missing id is not an error.
func (s *AvatarStore) DeleteByID(ctx context.Context, id int64) error {
	key, err := s.rows.DeleteByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAvatarNotFound) {
			return nil
		}
		return err
	}
	s.discard(ctx, key)
	return nil
}

func (s *AvatarStore) DeleteByUsername(ctx context.Context, username string) error {
	keys, err := s.rows.DeleteByUsername(ctx, username)
	if err != nil {
		return err
	}
	s.discard(ctx, keys...)
	return nil
}

func (s *AvatarStore) putImage(ctx context.Context, avatar models.Avatar) (models.AvatarRow, error) {
	row := models.AvatarRow{
		Username:         avatar.Username,
		ImageKey:         keyPrefix + ids.New(),
		ImageContentType: avatar.ImageContentType,
		ImageSize:        int64(len(avatar.Image)),
	}
	if err := s.objects.Put(ctx, row.ImageKey, avatar.Image, avatar.ImageContentType); err != nil {
		return models.AvatarRow{}, err
	}
	return row, nil
}

// load fetches the image bytes of row. A row whose object is gone is an
// inconsistency and surfaces as an error.
func (s *AvatarStore) load(ctx context.Context, row models.AvatarRow) (models.Avatar, error) {
	data, err := s.objects.Get(ctx, row.ImageKey)
	if err != nil {
		return models.Avatar{}, fmt.Errorf("load image of avatar %d: %w", row.ID, err)
	}
	return toAvatar(row, data), nil
}

// discard removes objects no row references anymore. Failures are handed to
// the worker.
func (s *AvatarStore) discard(ctx context.Context, keys ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if key == "" {
			continue
		}
		err := s.objects.Remove(ctx, key)
		if err == nil {
			continue
		}
		s.log.Warn().Err(err).Str("key", key).Msg("remove object failed, scheduling purge")
		if s.purger == nil {
			continue
		}
		if err := s.purger.EnqueuePurge(ctx, key); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("enqueue purge failed")
		}
	}
}

func toAvatar(row models.AvatarRow, image []byte) models.Avatar {
	id := row.ID
	if image == nil {
		image = []byte{}
	}
	return models.Avatar{
		ID:               &id,
		Username:         row.Username,
		Image:            image,
		ImageContentType: row.ImageContentType,
	}
}
