package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	activeUsersKey = "active_users"
	displayNameKey = "display_names"
)

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(ctx context.Context, redisURL string) (*RedisClient, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Check connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Client exposes the underlying go-redis client for sibling components such as the payload cache.
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// AddActiveUser adds a participant to the active users set.
func (r *RedisClient) AddActiveUser(ctx context.Context, participantID string) error {
	if err := r.client.SAdd(ctx, activeUsersKey, participantID).Err(); err != nil {
		return fmt.Errorf("failed to add active user: %w", err)
	}
	return nil
}

// RemoveActiveUser removes a participant from the active users set.
func (r *RedisClient) RemoveActiveUser(ctx context.Context, participantID string) error {
	if err := r.client.SRem(ctx, activeUsersKey, participantID).Err(); err != nil {
		return fmt.Errorf("failed to remove active user: %w", err)
	}
	return nil
}

// GetActiveUsers retrieves all active users.
func (r *RedisClient) GetActiveUsers(ctx context.Context) ([]string, error) {
	users, err := r.client.SMembers(ctx, activeUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	return users, nil
}

func (r *RedisClient) IsUserActive(ctx context.Context, participantID string) (bool, error) {
	return r.client.SIsMember(ctx, activeUsersKey, participantID).Result()
}

// ClearActiveUsers drops the presence set, used at startup since the set does not survive a restart meaningfully.
func (r *RedisClient) ClearActiveUsers(ctx context.Context) error {
	return r.client.Del(ctx, activeUsersKey).Err()
}

func (r *RedisClient) SetDisplayName(ctx context.Context, participantID, name string) error {
	if err := r.client.HSet(ctx, displayNameKey, participantID, name).Err(); err != nil {
		return fmt.Errorf("failed to store display name: %w", err)
	}
	return nil
}

func (r *RedisClient) GetDisplayName(ctx context.Context, participantID string) (string, bool, error) {
	name, err := r.client.HGet(ctx, displayNameKey, participantID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load display name: %w", err)
	}
	return name, true, nil
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// FlushDB clears the selected database. Tests only.
func (r *RedisClient) FlushDB(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
