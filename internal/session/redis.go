package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "tabletalk:session:"
	redisSessionsKey = "tabletalk:sessions"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore shares histories between API replicas. Each session is a list
// of JSON turns that expires TTL after its last append.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) History(ctx context.Context, sessionID string) ([]Turn, error) {
	raw, err := s.client.LRange(ctx, turnsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read session %q: %w", sessionID, err)
	}
	return decodeTurns(raw)
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, turn Turn) ([]Turn, error) {
	encoded, err := json.Marshal(turn)
	if err != nil {
		return nil, fmt.Errorf("encode turn: %w", err)
	}
	key := turnsKey(sessionID)
	if err := s.client.RPush(ctx, key, string(encoded)).Err(); err != nil {
		return nil, fmt.Errorf("append to session %q: %w", sessionID, err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return nil, fmt.Errorf("expire session %q: %w", sessionID, err)
		}
	}
	if err := s.client.SAdd(ctx, redisSessionsKey, sessionID).Err(); err != nil {
		return nil, fmt.Errorf("index session %q: %w", sessionID, err)
	}
	return s.History(ctx, sessionID)
}

func (s *RedisStore) Sessions(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, redisSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func turnsKey(sessionID string) string {
	return redisKeyPrefix + sessionID + ":turns"
}

func decodeTurns(raw []string) ([]Turn, error) {
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var turn Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
