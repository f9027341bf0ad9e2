package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/verdandi/pkg/compression"
)

const (
	readyKey   = "verdandi:queue:ready"
	delayedKey = "verdandi:queue:delayed"
)

type redisQueue struct {
	client     *redis.Client
	compressor *compression.Compressor
}

func NewRedis(addr, password string, db int, algo compression.Algorithm) (Queue, error) {
	compressor, err := compression.New(algo)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &redisQueue{client: client, compressor: compressor}, nil
}

func (q *redisQueue) Enqueue(ctx context.Context, t Task) error {
	payload, err := encodeTask(t, q.compressor)
	if err != nil {
		return err
	}
	if !t.NotBefore.IsZero() && t.NotBefore.After(time.Now()) {
		return q.client.ZAdd(ctx, delayedKey, redis.Z{
			Score:  float64(t.NotBefore.Unix()),
			Member: string(payload),
		}).Err()
	}
	return q.client.LPush(ctx, readyKey, payload).Err()
}

func (q *redisQueue) Dequeue(ctx context.Context) (Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Task{}, err
		}
		if err := q.promoteDue(ctx); err != nil {
			return Task{}, err
		}

		// short timeout so due delayed tasks keep getting promoted
		res, err := q.client.BRPop(ctx, time.Second, readyKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return Task{}, err
		}

		t, err := decodeTask([]byte(res[1]))
		if err != nil {
			// malformed entry, drop it and keep consuming
			continue
		}
		return t, nil
	}
}

// promoteDue moves delayed tasks whose time has come onto the ready list.
// ZRem arbitrates between competing consumers: only the one that removes the
// member pushes it.
func (q *redisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	members, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 64,
	}).Result()
	if err != nil {
		return err
	}
	for _, m := range members {
		removed, err := q.client.ZRem(ctx, delayedKey, m).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, readyKey, m).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *redisQueue) Close() error {
	return q.client.Close()
}
