package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue holds target URLs waiting to be probed. Items are leased into a
// processing list and removed from it on ack.
type RedisQueue struct {
	cli      *redis.Client
	queueKey string
	procKey  string
	wait     time.Duration
}

type item struct {
	URL     string `json:"url"`
	TS      int64  `json:"ts"`
	Attempt int    `json:"attempt"`
}

func NewRedis(addr, key string, wait time.Duration) (*RedisQueue, error) {
	cli := redis.NewClient(&redis.Options{Addr: addr})
	if err := cli.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return newQueue(cli, key, wait), nil
}

func newQueue(cli *redis.Client, key string, wait time.Duration) *RedisQueue {
	if wait <= 0 {
		wait = time.Second
	}
	return &RedisQueue{cli: cli, queueKey: key, procKey: key + ":processing", wait: wait}
}

// Ping reports whether the Redis server is reachable.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.cli.Ping(ctx).Err()
}

// Lease pops one target. An empty url with a nil error means the queue
// stayed empty for the wait period.
func (q *RedisQueue) Lease(ctx context.Context) (string, func() error, error) {
	res, err := q.cli.BRPopLPush(ctx, q.queueKey, q.procKey, q.wait).Result()
	if errors.Is(err, redis.Nil) {
		return "", func() error { return nil }, nil
	}
	if err != nil {
		return "", func() error { return err }, err
	}
	var it item
	if err := json.Unmarshal([]byte(res), &it); err != nil {
		_ = q.cli.LRem(ctx, q.procKey, 1, res).Err()
		return "", func() error { return err }, err
	}
	ack := func() error {
		return q.cli.LRem(ctx, q.procKey, 1, res).Err()
	}
	return it.URL, ack, nil
}

// Drain leases targets until the queue is empty or max are collected
// (max <= 0 means no limit), acknowledging each one.
func (q *RedisQueue) Drain(ctx context.Context, max int) ([]string, error) {
	var out []string
	for max <= 0 || len(out) < max {
		url, ack, err := q.Lease(ctx)
		if err != nil {
			return out, err
		}
		if url == "" {
			return out, nil
		}
		out = append(out, url)
		if err := ack(); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Seed pushes a target URL into the queue
func (q *RedisQueue) Seed(ctx context.Context, url string) error {
	b, _ := json.Marshal(item{URL: url, TS: time.Now().UTC().Unix(), Attempt: 0})
	return q.cli.LPush(ctx, q.queueKey, string(b)).Err()
}

func (q *RedisQueue) Close() error { return q.cli.Close() }
