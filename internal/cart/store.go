package cart

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/storefront-pos/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// Store keeps one cart per session in Redis.
type Store struct {
	Redis *redis.Client
}

// Load returns an empty cart when the session has none.
func (s *Store) Load(ctx context.Context, sessionID string) (*Cart, error) {
	raw, ok, err := redisx.GetString(ctx, s.Redis, fmt.Sprintf(redisx.KeyCart, sessionID))
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	c := New()
	if !ok {
		return c, nil
	}
	if err := json.Unmarshal([]byte(raw), c); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return c, nil
}

// Save writes c, or deletes the key when c is empty.
func (s *Store) Save(ctx context.Context, sessionID string, c *Cart) error {
	if c.Empty() {
		return s.Delete(ctx, sessionID)
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.Redis.Set(ctx, fmt.Sprintf(redisx.KeyCart, sessionID), b, redisx.TTLCart).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyCart, sessionID)).Err()
}
