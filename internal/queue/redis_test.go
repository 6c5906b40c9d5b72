package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a Redis server; set REDIS_TEST_ADDR to run them.
func testQueue(t *testing.T) *RedisQueue {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	cli := redis.NewClient(&redis.Options{Addr: addr})
	key := "uptime-test:" + time.Now().Format("150405.000000000")
	t.Cleanup(func() {
		cli.Del(context.Background(), key, key+":processing")
		cli.Close()
	})
	return newQueue(cli, key, 100*time.Millisecond)
}

func TestSeedAndDrain(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Ping(ctx))
	require.NoError(t, q.Seed(ctx, "https://a.example/health"))
	require.NoError(t, q.Seed(ctx, "https://b.example/health"))

	urls, err := q.Drain(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/health", "https://b.example/health"}, urls)

	n, err := q.cli.LLen(ctx, q.procKey).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "drained items are acknowledged")
}

func TestDrain_Max(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()
	for _, u := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		require.NoError(t, q.Seed(ctx, u))
	}
	urls, err := q.Drain(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

func TestLease_Empty(t *testing.T) {
	q := testQueue(t)
	url, ack, err := q.Lease(context.Background())
	require.NoError(t, err)
	assert.Empty(t, url)
	assert.NoError(t, ack())
}
