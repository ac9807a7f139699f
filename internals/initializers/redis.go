package initializers

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectToRedis opens the shared cache used for rate counters, cooldown
// markers, and pending two-factor material, and verifies the connection.
func ConnectToRedis(addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}
