package startup

import (
	"context"
	"time"

	redisstorage "github.com/collab/internal/storage/redis"
)

// ConnectRedisWithRetry подключает хранилище присутствия в Redis с повторами.
func ConnectRedisWithRetry(ctx context.Context, redisURL string, r Retry) (*redisstorage.Client, error) {
	var client *redisstorage.Client
	err := retry(ctx, "redis", r, func(ctx context.Context) error {
		connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(connCtx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
