// Package redis implements the persistence ports over Redis: the commit
// log as an append-only list per session, the queue journal likewise, and
// a SET NX distributed locker.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

// Store implements ports.CommitStore and ports.QueueJournal using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration refreshed on every write; 0 disables it.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithPrefix sets the key prefix for session data.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "arbiter:session:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) commitsKey(sessionID string) string {
	return s.prefix + sessionID + ":commits"
}

func (s *Store) queueKey(sessionID string) string {
	return s.prefix + sessionID + ":queue"
}

// Commit appends one applied outcome to the session's commit log. The
// record lands as a single RPUSH, so the whole change set is visible
// atomically or not at all.
func (s *Store) Commit(ctx context.Context, sessionID, actionID string, changes []domain.StateChange) error {
	data, err := json.Marshal(ports.CommitRecord{ActionID: actionID, Changes: changes})
	if err != nil {
		return fmt.Errorf("failed to marshal commit: %w", err)
	}

	key := s.commitsKey(sessionID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to commit to redis: %w", err)
	}
	return nil
}

// Commits returns the session's applied records in commit order.
func (s *Store) Commits(ctx context.Context, sessionID string) ([]ports.CommitRecord, error) {
	raw, err := s.client.LRange(ctx, s.commitsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read commits: %w", err)
	}

	records := make([]ports.CommitRecord, 0, len(raw))
	for _, item := range raw {
		var record ports.CommitRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal commit: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// AppendQueued records one buffered action in the queue journal.
func (s *Store) AppendQueued(ctx context.Context, sessionID string, action domain.QueuedAction) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal queued action: %w", err)
	}

	key := s.queueKey(sessionID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to journal queued action: %w", err)
	}
	return nil
}

// LoadQueued returns the journal in enqueuedAt order.
func (s *Store) LoadQueued(ctx context.Context, sessionID string) ([]domain.QueuedAction, error) {
	raw, err := s.client.LRange(ctx, s.queueKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue journal: %w", err)
	}

	queued := make([]domain.QueuedAction, 0, len(raw))
	for _, item := range raw {
		var action domain.QueuedAction
		if err := json.Unmarshal([]byte(item), &action); err != nil {
			return nil, fmt.Errorf("failed to unmarshal queued action: %w", err)
		}
		queued = append(queued, action)
	}
	return queued, nil
}

// ClearQueued empties the journal after a successful drain.
func (s *Store) ClearQueued(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.queueKey(sessionID)).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
