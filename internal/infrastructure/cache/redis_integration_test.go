//go:build integration

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newRedisContainer(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	require.NoError(t, client.Ping(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisSuggestionCache_Integration(t *testing.T) {
	client := newRedisContainer(t)
	ctx := context.Background()
	tenant := uuid.New()
	c := NewRedisSuggestionCache(client, "test:sugg:", time.Minute, nil)

	_, ok, err := c.Get(ctx, tenant, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, tenant, "k", sampleSet()))
	got, ok, err := c.Get(ctx, tenant, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 0.9886, got.Items[0].Confidence())

	require.NoError(t, c.InvalidateTenant(ctx, tenant))
	_, ok, err = c.Get(ctx, tenant, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLocker_Integration(t *testing.T) {
	client := newRedisContainer(t)
	l := NewRedisLocker(client, "test:lock:", 5*time.Second, nil)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "invoice:1", "po-line:2")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "po-line:2")
	require.Error(t, err)
	assert.True(t, shared.IsTransient(err))

	unlock()
	again, err := l.Lock(ctx, "po-line:2")
	require.NoError(t, err)
	again()

	var mu sync.Mutex
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "counter")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			counter++
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, counter)
}
