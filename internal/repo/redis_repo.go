package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oziev02/pixelflex/internal/domain"
	"github.com/redis/go-redis/v9"
)

type redisRepo struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewRedisRepository stores blobs under namespace. Keys expire after ttl even
// if Purge never runs.
func NewRedisRepository(client redis.UniversalClient, namespace string, ttl time.Duration) BlobRepository {
	return &redisRepo{client: client, namespace: namespace, ttl: ttl}
}

func (r *redisRepo) key(h domain.Handle) string {
	return r.namespace + ":" + string(h)
}

func (r *redisRepo) Put(ctx context.Context, data []byte) (domain.Handle, error) {
	h := domain.Handle(GenerateID())
	if err := r.client.Set(ctx, r.key(h), data, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return h, nil
}

func (r *redisRepo) Get(ctx context.Context, h domain.Handle) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(h)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrHandleNotFound, h)
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (r *redisRepo) Release(ctx context.Context, h domain.Handle) error {
	if err := r.client.Del(ctx, r.key(h)).Err(); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (r *redisRepo) Exists(ctx context.Context, h domain.Handle) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(h)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blob existence: %w", err)
	}
	return n > 0, nil
}

const purgeBatch = 500

func (r *redisRepo) Purge(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.namespace+":*", purgeBatch).Iterator()

	keys := make([]string, 0, purgeBatch)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == purgeBatch {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to purge blobs: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan blobs: %w", err)
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to purge blobs: %w", err)
		}
	}
	return nil
}

// NewRedisClient connects to a single redis node and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (redis.UniversalClient, error) {
	cl := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := cl.Ping(pingCtx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("error pinging redis server: %w", err)
	}
	return cl, nil
}
