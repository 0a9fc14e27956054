package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carma/internal/config"
	"carma/internal/domain"
	"carma/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix  = "carma:session:"
	verifiedKeyPrefix = "carma:verified:"
)

var errNilClient = errors.New("redis client is nil")

// NewRedisClient builds a client from the redis section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisSessionStore keeps flow sessions and verified accounts in Redis.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (r *RedisSessionStore) SaveSession(ctx context.Context, session *models.FlowSession, ttl time.Duration) error {
	if r.client == nil {
		return errNilClient
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+session.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session in redis: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) GetSession(ctx context.Context, id string) (*models.FlowSession, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	val, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var session models.FlowSession
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionStore) MarkVerified(ctx context.Context, account string, ttl time.Duration) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Set(ctx, verifiedKeyPrefix+account, time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark account verified: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) IsVerified(ctx context.Context, account string) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	n, err := r.client.Exists(ctx, verifiedKeyPrefix+account).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check verified account: %w", err)
	}
	return n > 0, nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
