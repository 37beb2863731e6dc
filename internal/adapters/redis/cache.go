package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/club-seat-reservations/internal/domain"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// GetPlace returns a cached directory summary, or nil on miss. Cache
// contents are advisory only; the mongo directory stays authoritative.
func (c *Cache) GetPlace(ctx context.Context, placeID uuid.UUID) (*domain.PlaceInfo, error) {
	val, err := c.client.Get(ctx, placeKey(placeID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info domain.PlaceInfo
	if err := json.Unmarshal(val, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Cache) SetPlace(ctx context.Context, info domain.PlaceInfo, ttl time.Duration) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, placeKey(info.ID), data, ttl).Err()
}

func placeKey(placeID uuid.UUID) string {
	return "place:" + placeID.String()
}
