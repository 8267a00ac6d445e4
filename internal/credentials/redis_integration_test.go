//go:build integration

package credentials

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisSource(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	src, err := NewRedisSource(fmt.Sprintf("redis://%s/0", endpoint), "")
	require.NoError(t, err)
	defer src.Close()

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	defer client.Close()
	require.NoError(t, client.HSet(ctx, DefaultRedisPrefix+"nebius", "token", "t1.abc", "folder_id", "b1g").Err())

	b, err := src.Read(ctx, "nebius")
	require.NoError(t, err)
	assert.Equal(t, Bundle{"token": "t1.abc", "folder_id": "b1g"}, b)

	_, err = src.Read(ctx, "alibaba")
	assert.ErrorIs(t, err, ErrNotFound)
}
