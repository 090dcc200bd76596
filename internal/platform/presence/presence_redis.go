// Package presence contains the Redis and Firestore presence stores.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-order-realtime-service/internal/presence"
	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// redisClient defines the interface we need from go-redis.
type redisClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// RedisStore keeps one hash per identity, `presence:{role}:{userId}`, whose
// fields are connection ids and values JSON ConnectionInfo. The hash expires
// after ttl so a crashed instance cannot leave users online forever.
type RedisStore struct {
	client redisClient
	ttl    time.Duration
	logger zerolog.Logger
}

var _ presence.Store = (*RedisStore)(nil)

// NewRedisStore is the constructor for the RedisStore.
func NewRedisStore(client redisClient, ttl time.Duration, logger zerolog.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "RedisPresence").Logger(),
	}, nil
}

func presenceKey(identity orders.Identity) string {
	return "presence:" + identity.Key()
}

// MarkOnline records the connection and refreshes the hash expiry.
func (s *RedisStore) MarkOnline(ctx context.Context, identity orders.Identity, info orders.ConnectionInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal connection info: %w", err)
	}

	key := presenceKey(identity)
	if err := s.client.HSet(ctx, key, info.ConnectionID, payload).Err(); err != nil {
		return fmt.Errorf("failed to hset presence %s: %w", key, err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("failed to set presence expiry %s: %w", key, err)
		}
	}
	s.logger.Debug().Str("key", key).Str("conn", info.ConnectionID).Msg("Presence set.")
	return nil
}

// MarkOffline removes one connection field. Redis deletes the hash with its last field.
func (s *RedisStore) MarkOffline(ctx context.Context, identity orders.Identity, connectionID string) error {
	key := presenceKey(identity)
	if err := s.client.HDel(ctx, key, connectionID).Err(); err != nil {
		return fmt.Errorf("failed to hdel presence %s: %w", key, err)
	}
	return nil
}

// Connections lists the identity's recorded connections, oldest first.
func (s *RedisStore) Connections(ctx context.Context, identity orders.Identity) ([]orders.ConnectionInfo, error) {
	key := presenceKey(identity)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to hgetall presence %s: %w", key, err)
	}

	infos := make([]orders.ConnectionInfo, 0, len(fields))
	for connID, raw := range fields {
		var info orders.ConnectionInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Str("conn", connID).Msg("Skipping malformed presence entry.")
			continue
		}
		infos = append(infos, info)
	}
	sortConnections(infos)
	return infos, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func sortConnections(infos []orders.ConnectionInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt != infos[j].ConnectedAt {
			return infos[i].ConnectedAt < infos[j].ConnectedAt
		}
		return infos[i].ConnectionID < infos[j].ConnectionID
	})
}
