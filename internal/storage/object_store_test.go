package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"avatarsvc/internal/config"
)

// GO_TEST_INTEGRATION=1 go test ./internal/storage -v -count=1
func startMinio(t *testing.T) *ObjectStore {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	const (
		rootUser     = "root"
		rootPassword = "rootpass"
	)
	req := tc.ContainerRequest{
		Image: "docker.io/minio/minio:latest",
		Env: map[string]string{
			"MINIO_ROOT_USER":     rootUser,
			"MINIO_ROOT_PASSWORD": rootPassword,
		},
		Cmd:          []string{"server", "/data"},
		ExposedPorts: []string{"9000/tcp"},
		WaitingFor:   wait.ForListeningPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "9000/tcp")

	st, err := NewObjectStore(config.StorageConfig{
		Endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
		AccessKey: rootUser,
		SecretKey: rootPassword,
		Bucket:    "avatars",
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return st.EnsureBucket(ctx) == nil
	}, 30*time.Second, 500*time.Millisecond)
	return st
}

func TestIntegration_ObjectStore(t *testing.T) {
	st := startMinio(t)
	ctx := context.Background()

	require.NoError(t, st.EnsureBucket(ctx))
	require.NoError(t, st.Ping(ctx))

	require.NoError(t, st.Put(ctx, "avatars/a", []byte("png"), "image/png"))
	require.NoError(t, st.Put(ctx, "avatars/empty", []byte{}, "image/png"))
	require.NoError(t, st.Put(ctx, "other/b", []byte("x"), "image/png"))

	data, err := st.Get(ctx, "avatars/a")
	require.NoError(t, err)
	require.Equal(t, []byte("png"), data)

	data, err = st.Get(ctx, "avatars/empty")
	require.NoError(t, err)
	require.Empty(t, data)

	_, err = st.Get(ctx, "avatars/missing")
	require.ErrorIs(t, err, ErrObjectNotFound)

	keys, err := st.ListKeys(ctx, "avatars/")
	require.NoError(t, err)
	require.Len(t, keys, 2)

	require.NoError(t, st.Remove(ctx, "avatars/a"))
	require.NoError(t, st.Remove(ctx, "avatars/a"))

	_, err = st.Get(ctx, "avatars/a")
	require.ErrorIs(t, err, ErrObjectNotFound)
}
