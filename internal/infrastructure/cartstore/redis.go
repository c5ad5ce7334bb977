package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/internal/cart"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists carts as one JSON blob per identity key.
// Guest carts expire; authenticated carts are kept until cleared.
type RedisStore struct {
	client   *redis.Client
	guestTTL time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:   client,
		guestTTL: 14 * 24 * time.Hour,
	}
}

func (s *RedisStore) Load(ctx context.Context, identity cart.Identity) ([]cart.Line, error) {
	data, err := s.client.Get(ctx, identity.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var lines []cart.Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return lines, nil
}

func (s *RedisStore) Save(ctx context.Context, identity cart.Identity, lines []cart.Line) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	var ttl time.Duration
	if identity.Kind == cart.KindGuest {
		ttl = s.guestTTL
	}
	if err := s.client.Set(ctx, identity.Key(), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, identity cart.Identity) error {
	if err := s.client.Del(ctx, identity.Key()).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
