package contextcache

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

const redisKeyPrefix = "enriched:"

// RedisBackend stores entries in Redis so enriched contexts survive process
// restarts and are shared across instances.
type RedisBackend struct {
	pool *redis.Pool
}

// NewRedisPool creates a redigo pool for the given address.
func NewRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     4,
		MaxActive:   16,
		IdleTimeout: 120 * time.Second,
		Wait:        true,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(3*time.Second),
				redis.DialReadTimeout(3*time.Second),
				redis.DialWriteTimeout(3*time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedisBackend creates a Redis-backed cache backend.
func NewRedisBackend(pool *redis.Pool) *RedisBackend {
	return &RedisBackend{pool: pool}
}

// Get implements Backend.
func (r *RedisBackend) Get(ctx context.Context, sessionID string) (*models.EnrichedContext, bool, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, false, err
	}
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", redisKeyPrefix+sessionID))
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ec models.EnrichedContext
	if err := json.Unmarshal(data, &ec); err != nil {
		return nil, false, err
	}
	return &ec, true, nil
}

// Put implements Backend.
func (r *RedisBackend) Put(ctx context.Context, sessionID string, ec *models.EnrichedContext) error {
	data, err := json.Marshal(ec)
	if err != nil {
		return err
	}

	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("SET", redisKeyPrefix+sessionID, data)
	return err
}

// Delete implements Backend.
func (r *RedisBackend) Delete(ctx context.Context, sessionID string) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("DEL", redisKeyPrefix+sessionID)
	return err
}
