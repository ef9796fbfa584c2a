package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"avatarsvc/internal/config"
	"avatarsvc/internal/middleware"
	"avatarsvc/internal/models"
	"avatarsvc/internal/security/securitytest"
	"avatarsvc/internal/service"
	"avatarsvc/internal/settings"
)

const testSecret = "test-secret"

type testEnv struct {
	router   *gin.Engine
	avatars  *MockAvatars
	settings *MockSettings
	token    string
	admin    string
}

func newTestEnv(t *testing.T, health HealthChecks) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctrl := gomock.NewController(t)
	env := testEnv{
		avatars:  NewMockAvatars(ctrl),
		settings: NewMockSettings(ctrl),
	}

	cfg := &config.AppConfig{
		Environment: "test",
		Security:    config.SecurityConfig{JWTSecret: testSecret, AdminRole: models.RoleAdmin},
		Avatar:      config.AvatarConfig{MaxSizeBytes: 1 << 10},
	}

	env.router = gin.New()
	env.router.Use(middleware.RequestID())
	NewHandlerSet(zerolog.Nop(), cfg, env.avatars, env.settings, health).Register(env.router.Group("/api"))

	var err error
	env.token, err = securitytest.AccessToken(testSecret, "jdoe", []string{"user"}, time.Minute)
	require.NoError(t, err)
	env.admin, err = securitytest.AccessToken(testSecret, "root", []string{models.RoleAdmin}, time.Minute)
	require.NoError(t, err)
	return env
}

func (e testEnv) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, field string, data []byte, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="avatar"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func TestRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	w := env.do(http.MethodGet, "/api/avatars", "", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	env.avatars.EXPECT().Upload(gomock.Any(), "alice", []byte("png"), "image/png").Return(nil)

	body, ct := multipartBody(t, uploadField, []byte("png"), "image/png")
	w := env.do(http.MethodPost, "/api/avatars/image/alice", env.token, body, ct)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestUploadCurrentUserImage(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	env.avatars.EXPECT().Upload(gomock.Any(), "jdoe", gomock.Any(), "image/png").Return(nil)

	body, ct := multipartBody(t, uploadField, []byte("png"), "image/png")
	w := env.do(http.MethodPost, "/api/avatars/image/currentUser", env.token, body, ct)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestUploadImage_Rejected(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	env.avatars.EXPECT().Upload(gomock.Any(), "alice", gomock.Any(), gomock.Any()).
		Return(&service.UploadError{Cause: errors.New("content type mismatch")})

	body, ct := multipartBody(t, uploadField, []byte("png"), "image/gif")
	w := env.do(http.MethodPost, "/api/avatars/image/alice", env.token, body, ct)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "content type mismatch")
}

func TestUploadImage_MissingField(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	body, ct := multipartBody(t, "file", []byte("png"), "image/png")
	w := env.do(http.MethodPost, "/api/avatars/image/alice", env.token, body, ct)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetImage_Found(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	env.avatars.EXPECT().Resolve(gomock.Any(), "alice").Return(service.ImageResult{
		Kind:        service.ImageFound,
		ContentType: "image/png",
		Size:        3,
		Body:        io.NopCloser(bytes.NewReader([]byte("png"))),
	}, nil)

	w := env.do(http.MethodGet, "/api/avatars/image/alice", env.token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))
	require.Equal(t, "png", w.Body.String())
}

func TestGetCurrentUserImage_NotFound(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	env.avatars.EXPECT().Resolve(gomock.Any(), "jdoe").
		Return(service.ImageResult{Kind: service.ImageNotFound, Status: http.StatusNotFound}, nil)

	w := env.do(http.MethodGet, "/api/avatars/image/currentUser", env.token, nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetImage_RemoteStatusPassthrough(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	env.avatars.EXPECT().Resolve(gomock.Any(), "alice").
		Return(service.ImageResult{Kind: service.ImageNotFound, Status: http.StatusGone}, nil)

	w := env.do(http.MethodGet, "/api/avatars/image/alice", env.token, nil, "")
	require.Equal(t, http.StatusGone, w.Code)
}

func TestGetImage_Errors(t *testing.T) {
	for _, err := range []error{service.ErrIdentityNotFound, service.ErrRemoteImageEmpty, errors.New("boom")} {
		env := newTestEnv(t, HealthChecks{})
		env.avatars.EXPECT().Resolve(gomock.Any(), "alice").Return(service.ImageResult{}, err)

		w := env.do(http.MethodGet, "/api/avatars/image/alice", env.token, nil, "")
		require.Equal(t, http.StatusInternalServerError, w.Code, err.Error())
		require.JSONEq(t, `{"error":"internal_server_error"}`, w.Body.String())
	}
}

func TestDeleteImage(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	env.avatars.EXPECT().DeleteByUsername(gomock.Any(), "nobody").Return(nil)

	w := env.do(http.MethodDelete, "/api/avatars/image/nobody", env.token, nil, "")
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestCreateAvatar(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	id := int64(12)
	env.avatars.EXPECT().Save(gomock.Any(), models.Avatar{Username: "alice", Image: []byte("png"), ImageContentType: "image/png"}).
		Return(models.Avatar{ID: &id, Username: "alice", Image: []byte("png"), ImageContentType: "image/png"}, nil)

	body := jsonBody(t, models.Avatar{Username: "alice", Image: []byte("png"), ImageContentType: "image/png"})
	w := env.do(http.MethodPost, "/api/avatars", env.token, body, "application/json")
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "/api/avatars/12", w.Header().Get("Location"))
	require.Equal(t, "avatarsvc.avatar.created", w.Header().Get(middleware.AlertHeader))
	require.Equal(t, "12", w.Header().Get(middleware.AlertParamsHeader))

	var got models.Avatar
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, id, *got.ID)
	require.Equal(t, []byte("png"), got.Image)
}

// No Save expectation: validation failures never reach the service.
func TestCreateAvatar_Rejected(t *testing.T) {
	id := int64(1)
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "with id", body: mustJSON(models.Avatar{ID: &id, Username: "a", Image: []byte("x"), ImageContentType: "image/png"}), code: "idexists"},
		{name: "no username", body: `{"image":"eA==","imageContentType":"image/png"}`, code: "username_required"},
		{name: "no image", body: `{"username":"a","imageContentType":"image/png"}`, code: "image_required"},
		{name: "no content type", body: `{"username":"a","image":"eA=="}`, code: "image_required"},
		{name: "bad json", body: `{"username":`, code: "invalid_json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, HealthChecks{})
			w := env.do(http.MethodPost, "/api/avatars", env.token, bytes.NewBufferString(tt.body), "application/json")
			require.Equal(t, http.StatusBadRequest, w.Code)
			require.Contains(t, w.Body.String(), `"error":"`+tt.code+`"`)
		})
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func TestUpdateAvatar(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	id := int64(12)
	in := models.Avatar{ID: &id, Username: "alice", Image: []byte{}, ImageContentType: "image/png"}
	env.avatars.EXPECT().Save(gomock.Any(), in).Return(in, nil)

	w := env.do(http.MethodPut, "/api/avatars", env.token, jsonBody(t, in), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "avatarsvc.avatar.updated", w.Header().Get(middleware.AlertHeader))
}

func TestUpdateAvatar_NullID(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	body := jsonBody(t, models.Avatar{Username: "alice", Image: []byte("x"), ImageContentType: "image/png"})
	w := env.do(http.MethodPut, "/api/avatars", env.token, body, "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), `"error":"idnull"`)
}

func TestUpdateAvatar_UnknownID(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	id := int64(404)
	env.avatars.EXPECT().Save(gomock.Any(), gomock.Any()).Return(models.Avatar{}, service.ErrNotFound)

	body := jsonBody(t, models.Avatar{ID: &id, Username: "alice", Image: []byte("x"), ImageContentType: "image/png"})
	w := env.do(http.MethodPut, "/api/avatars", env.token, body, "application/json")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAvatars_Empty(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	env.avatars.EXPECT().FindAll(gomock.Any()).Return(nil, nil)

	w := env.do(http.MethodGet, "/api/avatars", env.token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())
}

func TestGetAvatar(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	id := int64(3)
	env.avatars.EXPECT().FindOne(gomock.Any(), id).Return(models.Avatar{ID: &id, Username: "alice", Image: []byte{}}, true, nil)
	env.avatars.EXPECT().FindOne(gomock.Any(), int64(4)).Return(models.Avatar{}, false, nil)

	w := env.do(http.MethodGet, "/api/avatars/3", env.token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"username":"alice"`)

	w = env.do(http.MethodGet, "/api/avatars/4", env.token, nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/avatars/abc", env.token, nil, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteAvatar(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	env.avatars.EXPECT().Delete(gomock.Any(), int64(9)).Return(nil)

	w := env.do(http.MethodDelete, "/api/avatars/9", env.token, nil, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "avatarsvc.avatar.deleted", w.Header().Get(middleware.AlertHeader))
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, HealthChecks{})

	current := models.AvatarSettings{Style: models.AvatarStyleLocal, GravatarURL: "http://x.com", ImageWidth: 200}
	env.settings.EXPECT().Snapshot(gomock.Any()).Return(current, nil)

	w := env.do(http.MethodGet, "/api/avatars/config", env.token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"avatarStyle":"LOCAL","gravatarUrl":"http://x.com","imageWidth":200}`, w.Body.String())

	w = env.do(http.MethodPut, "/api/avatars/config", env.token, bytes.NewBufferString(`{"avatarStyle":"GRAVATAR"}`), "application/json")
	require.Equal(t, http.StatusForbidden, w.Code)

	env.settings.EXPECT().Update(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p settings.Patch) (models.AvatarSettings, error) {
			require.NotNil(t, p.Style)
			require.Equal(t, "GRAVATAR", *p.Style)
			require.Nil(t, p.ImageWidth)
			next := current
			next.Style = models.AvatarStyleGravatar
			return next, nil
		})
	w = env.do(http.MethodPut, "/api/avatars/config", env.admin, bytes.NewBufferString(`{"avatarStyle":"GRAVATAR"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"avatarStyle":"GRAVATAR"`)

	env.settings.EXPECT().Update(gomock.Any(), gomock.Any()).Return(models.AvatarSettings{}, settings.ErrInvalidSettings)
	w = env.do(http.MethodPut, "/api/avatars/config", env.admin, bytes.NewBufferString(`{"imageWidth":0}`), "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)

	env.settings.EXPECT().Reset(gomock.Any()).Return(current, nil)
	w = env.do(http.MethodDelete, "/api/avatars/config", env.admin, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHealth(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("down") })

	env := newTestEnv(t, HealthChecks{Database: ok, Cache: ok, Storage: ok})
	w := env.do(http.MethodGet, "/api/healthz", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	env = newTestEnv(t, HealthChecks{Database: ok, Cache: down})
	w = env.do(http.MethodGet, "/api/healthz", "", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), `"cache":"error"`)
	require.Contains(t, w.Body.String(), `"storage":"disabled"`)
}
