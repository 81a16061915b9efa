package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/dripline/dripline/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestNoopLocker(t *testing.T) {
	release, ok, err := scheduler.NoopLocker{}.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, release(context.Background()))
}

func TestRedisLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.PortEndpoint(ctx, "6379/tcp", "redis")
	require.NoError(t, err)

	client, err := scheduler.NewRedisClient(ctx, endpoint)
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	first := scheduler.NewRedisLocker(client, "")
	second := scheduler.NewRedisLocker(client, "")

	release, ok, err := first.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = second.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))

	release, ok, err = second.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, release(ctx))
}
