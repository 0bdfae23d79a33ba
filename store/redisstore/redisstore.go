// Package redisstore backs the send protocol's marker store with Redis.
//
// A marker is a single key written with SET NX, so concurrent senders racing
// on the same identifier resolve inside Redis: one SETNX wins and every other
// caller observes sendonce.ErrInFlight. Markers never expire by default;
// WithTTL bounds the duplicate-detection window instead of keeping records
// forever.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ostraco/sendonce"
)

const defaultKeyPrefix = "sendonce:inflight:"

// Store is a marker store on top of a Redis client. It satisfies
// sendonce.MarkerStore.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ sendonce.MarkerStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTTL makes markers expire after d. An expired marker means a repeat of
// the identifier is treated as a fresh send, so choose d longer than the
// longest window in which a duplicate submission is plausible.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		s.ttl = d
	}
}

// WithKeyPrefix namespaces marker keys, for deployments that share one Redis
// between services.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.keyPrefix = prefix
	}
}

// NewStore creates a marker store using the given Redis client.
func NewStore(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the Redis key used for a request identifier.
func (s *Store) Key(id string) string {
	return s.keyPrefix + id
}

// Store claims the identifier with SETNX. Redis acknowledges the write before
// this returns, so a crash after Store leaves the marker in place for the
// next attempt to find.
func (s *Store) Store(ctx context.Context, id string) error {
	set, err := s.client.SetNX(ctx, s.Key(id), time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store marker: %w", err)
	}
	if !set {
		return fmt.Errorf("marker %q: %w", id, sendonce.ErrInFlight)
	}
	return nil
}

// Unstore withdraws the marker. Deleting a key that is not present is a
// no-op, so the call is safe to repeat.
func (s *Store) Unstore(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.Key(id)).Err(); err != nil {
		return fmt.Errorf("failed to unstore marker: %w", err)
	}
	return nil
}

// Contains reports whether the identifier is currently marked in-flight.
func (s *Store) Contains(ctx context.Context, id string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.Key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check marker: %w", err)
	}
	return exists > 0, nil
}
