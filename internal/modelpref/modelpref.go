// Package modelpref manages the conversation-scoped model selection. The
// selection is durable on the conversation row, cached in redis for cheap
// reload, and announced through a kvstore subscription so in-session
// consumers react without touching message flow.
package modelpref

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orbitchat/chat-core/internal/kvstore"
)

const (
	cachePrefix = "chat:model:"
	cacheTTL    = 30 * time.Minute
)

// Cache is the subset of the redis client the store needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Repository is the durable side of the selection.
type Repository interface {
	UpdateModel(ctx context.Context, roomID uuid.UUID, model string) error
	GetModel(ctx context.Context, roomID uuid.UUID) (string, error)
}

// Store coordinates the three layers of a model selection.
type Store struct {
	repo   Repository
	cache  Cache
	kv     *kvstore.Store
	logger *logrus.Logger
}

// NewStore creates a model preference store. cache may be nil.
func NewStore(repo Repository, cache Cache, kv *kvstore.Store, logger *logrus.Logger) *Store {
	return &Store{repo: repo, cache: cache, kv: kv, logger: logger}
}

func key(roomID uuid.UUID) string {
	return cachePrefix + roomID.String()
}

// Select persists the model for the room and notifies subscribers. The
// durable write is authoritative; cache failures are logged only.
func (s *Store) Select(ctx context.Context, roomID uuid.UUID, model string) error {
	if err := s.repo.UpdateModel(ctx, roomID, model); err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key(roomID), model, cacheTTL); err != nil {
			s.logger.WithError(err).WithField("room_id", roomID).Warn("failed to cache model selection")
		}
	}
	s.kv.Set(key(roomID), model)
	return nil
}

// Load returns the room's model, preferring cache over the database.
func (s *Store) Load(ctx context.Context, roomID uuid.UUID) (string, error) {
	if s.cache != nil {
		if model, err := s.cache.Get(ctx, key(roomID)); err == nil && model != "" {
			return model, nil
		}
	}

	model, err := s.repo.GetModel(ctx, roomID)
	if err != nil {
		return "", fmt.Errorf("get model: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key(roomID), model, cacheTTL); err != nil {
			s.logger.WithError(err).WithField("room_id", roomID).Warn("failed to cache model selection")
		}
	}
	return model, nil
}

// Subscribe registers fn for in-session selection changes on the room.
func (s *Store) Subscribe(roomID uuid.UUID, fn func(model string)) func() {
	return s.kv.Subscribe(key(roomID), fn)
}
