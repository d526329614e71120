// Package redisstore keeps entry sessions in Redis so that they survive a
// restart of the bot and can be shared by several bot replicas.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"flotta/internal/session"
)

const keyPrefix = "flotta:session:"

// Store implements session.Store on a Redis client. Each session is a JSON
// string under flotta:session:<identity> with a TTL refreshed on every save.
type Store struct {
	client    *redis.Client
	retention time.Duration
}

// Open connects to url (redis://[:password@]host:port/db) and pings the server.
func Open(ctx context.Context, url string, retention time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return New(client, retention), nil
}

// New wraps an existing client.
func New(client *redis.Client, retention time.Duration) *Store {
	return &Store{client: client, retention: retention}
}

func key(identity int64) string {
	return keyPrefix + strconv.FormatInt(identity, 10)
}

func (s *Store) Load(ctx context.Context, identity int64) (*session.EntrySession, bool, error) {
	raw, err := s.client.Get(ctx, key(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var es session.EntrySession
	if err := json.Unmarshal(raw, &es); err != nil {
		return nil, false, fmt.Errorf("decode session %d: %w", identity, err)
	}
	return &es, true, nil
}

func (s *Store) Save(ctx context.Context, es *session.EntrySession) error {
	raw, err := json.Marshal(es)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", es.Identity, err)
	}
	if err := s.client.Set(ctx, key(es.Identity), raw, s.retention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, identity int64) (bool, error) {
	n, err := s.client.Del(ctx, key(identity)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}
