package config

import (
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

// NewAsynqRedisOpt builds the broker connection shared by the enqueue
// client, the worker server, and the inspector. It accepts the same
// REDIS_URL forms as NewRedisClient.
func NewAsynqRedisOpt(cfg *Config) (asynq.RedisConnOpt, error) {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %v", err)
		}
		return opt, nil
	}

	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}
