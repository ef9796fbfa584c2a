package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"avatarsvc/internal/config"
	"avatarsvc/internal/gravatar"
	"avatarsvc/internal/identity"
	"avatarsvc/internal/models"
	"avatarsvc/internal/store"
)

//go:generate mockgen -destination=../../mocks/service_mocks.go -package=mocks . AvatarStore,SettingsProvider,IdentityLookup,ImageFetcher

type AvatarStore interface {
	Create(ctx context.Context, avatar models.Avatar) (models.Avatar, error)
	ReplaceByUsername(ctx context.Context, avatar models.Avatar) (models.Avatar, error)
	Update(ctx context.Context, avatar models.Avatar) (models.Avatar, error)
	FindByID(ctx context.Context, id int64) (models.Avatar, error)
	FindByUsername(ctx context.Context, username string) (models.Avatar, error)
	FindAll(ctx context.Context) ([]models.Avatar, error)
	DeleteByID(ctx context.Context, id int64) error
	DeleteByUsername(ctx context.Context, username string) error
}

type SettingsProvider interface {
	Snapshot(ctx context.Context) (models.AvatarSettings, error)
}

type IdentityLookup interface {
	UserDetail(ctx context.Context, userID string) (models.UserDetail, error)
}

type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*gravatar.Response, error)
}

type ImageKind int

const (
	ImageNotFound ImageKind = iota
	ImageFound
)

// ImageResult is the outcome of Resolve. For ImageFound, Body streams the
// image and must be closed. For ImageNotFound, Status is the status to answer
// with.
type ImageResult struct {
	Kind        ImageKind
	Status      int
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

func (r ImageResult) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

func notFound(status int) ImageResult {
	return ImageResult{Kind: ImageNotFound, Status: status}
}

type AvatarService struct {
	store    AvatarStore
	settings SettingsProvider
	identity IdentityLookup
	fetcher  ImageFetcher
	cfg      config.AvatarConfig
	allowed  map[string]struct{}
	log      zerolog.Logger
}

func NewAvatarService(
	store AvatarStore,
	settings SettingsProvider,
	identity IdentityLookup,
	fetcher ImageFetcher,
	cfg config.AvatarConfig,
	log zerolog.Logger,
) *AvatarService {
	return &AvatarService{
		store:    store,
		settings: settings,
		identity: identity,
		fetcher:  fetcher,
		cfg:      cfg,
		allowed:  allowedTypes(cfg.AllowedContentTypes),
		log:      log,
	}
}

// Resolve finds the image to serve for userID under the current settings.
func (s *AvatarService) Resolve(ctx context.Context, userID string) (ImageResult, error) {
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return ImageResult{}, fmt.Errorf("avatar settings: %w", err)
	}

	if settings.Style == models.AvatarStyleGravatar {
		return s.resolveRemote(ctx, userID, settings)
	}
	return s.resolveLocal(ctx, userID)
}

func (s *AvatarService) resolveRemote(ctx context.Context, userID string, settings models.AvatarSettings) (ImageResult, error) {
	detail, err := s.identity.UserDetail(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return ImageResult{}, fmt.Errorf("%s: %w", userID, ErrIdentityNotFound)
		}
		return ImageResult{}, fmt.Errorf("identity lookup: %w", err)
	}
	if detail.Email == "" {
		return ImageResult{}, fmt.Errorf("%s has no email: %w", userID, ErrIdentityNotFound)
	}

	url := gravatar.AvatarURL(settings.GravatarURL, detail.Email, settings.ImageWidth)
	resp, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return ImageResult{}, err
	}
	if !resp.OK() {
		s.log.Debug().Str("user", userID).Int("status", resp.Status).Msg("gravatar miss")
		return notFound(resp.Status), nil
	}
	if resp.Body == nil {
		return ImageResult{}, ErrRemoteImageEmpty
	}

	body := bufio.NewReader(resp.Body)
	if _, err := body.Peek(1); err != nil {
		_ = resp.Body.Close()
		if errors.Is(err, io.EOF) {
			return ImageResult{}, ErrRemoteImageEmpty
		}
		return ImageResult{}, fmt.Errorf("read gravatar body: %w", err)
	}

	return ImageResult{
		Kind:        ImageFound,
		Status:      http.StatusOK,
		ContentType: resp.ContentType,
		Size:        resp.ContentLength,
		Body:        readCloser{Reader: body, Closer: resp.Body},
	}, nil
}

func (s *AvatarService) resolveLocal(ctx context.Context, userID string) (ImageResult, error) {
	avatar, err := s.store.FindByUsername(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(http.StatusNotFound), nil
		}
		return ImageResult{}, err
	}

	return ImageResult{
		Kind:        ImageFound,
		Status:      http.StatusOK,
		ContentType: avatar.ImageContentType,
		Size:        int64(len(avatar.Image)),
		Body:        io.NopCloser(bytes.NewReader(avatar.Image)),
	}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// Upload stores image as the avatar of userID. Every failure matches
// ErrUploadFailed.
func (s *AvatarService) Upload(ctx context.Context, userID string, image []byte, contentType string) error {
	if strings.TrimSpace(userID) == "" {
		return &UploadError{Cause: fmt.Errorf("%w: user id is blank", ErrInvalidArgument)}
	}

	data, contentType, err := s.prepareImage(image, contentType)
	if err != nil {
		return err
	}

	avatar := models.Avatar{
		Username:         userID,
		Image:            data,
		ImageContentType: contentType,
	}

	if s.cfg.UploadPolicy == config.UploadPolicyAppend {
		_, err = s.store.Create(ctx, avatar)
	} else {
		_, err = s.store.ReplaceByUsername(ctx, avatar)
	}
	if err != nil {
		return &UploadError{Cause: err}
	}

	s.log.Info().Str("user", userID).Str("content_type", contentType).Int("size", len(data)).Msg("avatar uploaded")
	return nil
}

// DeleteByUsername removes every avatar of username. Nothing to delete is
// not an error.
func (s *AvatarService) DeleteByUsername(ctx context.Context, username string) error {
	return s.store.DeleteByUsername(ctx, username)
}

// Save creates avatar when it has no id and updates it otherwise.
func (s *AvatarService) Save(ctx context.Context, avatar models.Avatar) (models.Avatar, error) {
	if err := validateRecord(avatar); err != nil {
		return models.Avatar{}, err
	}

	if avatar.ID == nil {
		return s.store.Create(ctx, avatar)
	}

	saved, err := s.store.Update(ctx, avatar)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Avatar{}, fmt.Errorf("avatar %d: %w", *avatar.ID, ErrNotFound)
		}
		return models.Avatar{}, err
	}
	return saved, nil
}

func (s *AvatarService) FindAll(ctx context.Context) ([]models.Avatar, error) {
	return s.store.FindAll(ctx)
}

func (s *AvatarService) FindOne(ctx context.Context, id int64) (models.Avatar, bool, error) {
	avatar, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Avatar{}, false, nil
		}
		return models.Avatar{}, false, err
	}
	return avatar, true, nil
}

// Delete removes the avatar with id. A missing id is not an error.
func (s *AvatarService) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteByID(ctx, id)
}

func validateRecord(avatar models.Avatar) error {
	if strings.TrimSpace(avatar.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidArgument)
	}
	if avatar.Image == nil {
		return fmt.Errorf("%w: image is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(avatar.ImageContentType) == "" {
		return fmt.Errorf("%w: image content type is required", ErrInvalidArgument)
	}
	return nil
}
