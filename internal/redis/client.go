// Package redisclient backs the slot index and the per-appointment locks with
// a Redis instance shared by every API and reconciler process.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions selects the server and sizes the connection pool.
type ClientOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
	PoolSize int
}

const (
	ioTimeout   = 2 * time.Second
	pingTimeout = 5 * time.Second
)

// NewRedisClient connects and pings. A client that cannot reach the server is
// closed and never returned.
func NewRedisClient(ctx context.Context, opts ClientOptions) (*redis.Client, error) {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		PoolSize:     poolSize,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	return rdb, nil
}
