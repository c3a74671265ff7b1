// Package devicestore persists the per-terminal remembered-employee record
// in Redis, standing in for the terminal's local storage.
package devicestore

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/config"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

const keyPrefix = "kiosk:remembered:"

// Client is the subset of redis.Client the store needs; narrowed so tests
// can substitute an in-memory fake.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore implements ports.RememberedSessionStore. One record per device
// under a well-known key, no expiry. Operations run behind a circuit breaker
// so a down Redis degrades auto-sign-in instead of stalling every unlock.
type RedisStore struct {
	client  Client
	breaker *gobreaker.CircuitBreaker
}

var _ ports.RememberedSessionStore = (*RedisStore)(nil)

func NewRedisStore(client Client) *RedisStore {
	return &RedisStore{
		client:  client,
		breaker: config.NewCircuitBreaker("Redis-DeviceStore"),
	}
}

func key(deviceID string) string { return keyPrefix + deviceID }

// Save overwrites any prior remembered employee for the device.
func (s *RedisStore) Save(ctx context.Context, deviceID string, emp domain.RememberedEmployee) error {
	payload, err := json.Marshal(emp)
	if err != nil {
		return err
	}
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.Set(ctx, key(deviceID), string(payload), 0).Err()
	})
	return err
}

// Load returns the remembered employee, or (nil, nil) when the record is
// absent. A corrupt payload is purged and treated as absent, never thrown.
func (s *RedisStore) Load(ctx context.Context, deviceID string) (*domain.RememberedEmployee, error) {
	// An absent key is a normal outcome and must not count against the
	// breaker, so redis.Nil is absorbed inside the guarded call.
	v, err := s.breaker.Execute(func() (interface{}, error) {
		raw, err := s.client.Get(ctx, key(deviceID)).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}

	var emp domain.RememberedEmployee
	if err := json.Unmarshal([]byte(v.(string)), &emp); err != nil {
		log.Printf("devicestore: corrupt remembered record for %s, purging: %v", deviceID, err)
		_ = s.client.Del(ctx, key(deviceID)).Err()
		return nil, nil
	}
	return &emp, nil
}

// Clear removes the remembered employee for the device.
func (s *RedisStore) Clear(ctx context.Context, deviceID string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.Del(ctx, key(deviceID)).Err()
	})
	return err
}
