package modelpref

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitchat/chat-core/internal/kvstore"
)

type fakeRepo struct {
	models    map[uuid.UUID]string
	updateErr error
	getCalls  int
}

func (r *fakeRepo) UpdateModel(_ context.Context, roomID uuid.UUID, model string) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.models[roomID] = model
	return nil
}

func (r *fakeRepo) GetModel(_ context.Context, roomID uuid.UUID) (string, error) {
	r.getCalls++
	model, ok := r.models[roomID]
	if !ok {
		return "", errors.New("not found")
	}
	return model, nil
}

type fakeCache struct {
	values map[string]string
	setErr error
}

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.values[key]
	if !ok {
		return "", errors.New("cache miss")
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.values[key] = value
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newStore(repo *fakeRepo, cache *fakeCache) *Store {
	var c Cache
	if cache != nil {
		c = cache
	}
	return NewStore(repo, c, kvstore.New(), testLogger())
}

func TestSelectUpdatesAllLayers(t *testing.T) {
	roomID := uuid.New()
	repo := &fakeRepo{models: map[uuid.UUID]string{}}
	cache := &fakeCache{values: map[string]string{}}
	store := newStore(repo, cache)

	var notified string
	unsubscribe := store.Subscribe(roomID, func(model string) { notified = model })
	defer unsubscribe()

	require.NoError(t, store.Select(context.Background(), roomID, "gpt-4o"))

	assert.Equal(t, "gpt-4o", repo.models[roomID])
	assert.Equal(t, "gpt-4o", cache.values["chat:model:"+roomID.String()])
	assert.Equal(t, "gpt-4o", notified)
}

func TestSelectRepositoryFailureIsTerminal(t *testing.T) {
	roomID := uuid.New()
	repo := &fakeRepo{models: map[uuid.UUID]string{}, updateErr: errors.New("db down")}
	cache := &fakeCache{values: map[string]string{}}
	store := newStore(repo, cache)

	notified := false
	unsubscribe := store.Subscribe(roomID, func(string) { notified = true })
	defer unsubscribe()

	err := store.Select(context.Background(), roomID, "gpt-4o")
	require.Error(t, err)
	assert.Empty(t, cache.values)
	assert.False(t, notified)
}

func TestSelectSurvivesCacheFailure(t *testing.T) {
	roomID := uuid.New()
	repo := &fakeRepo{models: map[uuid.UUID]string{}}
	cache := &fakeCache{values: map[string]string{}, setErr: errors.New("redis down")}
	store := newStore(repo, cache)

	require.NoError(t, store.Select(context.Background(), roomID, "gpt-4o"))
	assert.Equal(t, "gpt-4o", repo.models[roomID])
}

func TestLoadPrefersCache(t *testing.T) {
	roomID := uuid.New()
	repo := &fakeRepo{models: map[uuid.UUID]string{roomID: "from-db"}}
	cache := &fakeCache{values: map[string]string{"chat:model:" + roomID.String(): "from-cache"}}
	store := newStore(repo, cache)

	model, err := store.Load(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, "from-cache", model)
	assert.Equal(t, 0, repo.getCalls)
}

func TestLoadFallsBackToRepositoryAndWarmsCache(t *testing.T) {
	roomID := uuid.New()
	repo := &fakeRepo{models: map[uuid.UUID]string{roomID: "from-db"}}
	cache := &fakeCache{values: map[string]string{}}
	store := newStore(repo, cache)

	model, err := store.Load(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, "from-db", model)
	assert.Equal(t, "from-db", cache.values["chat:model:"+roomID.String()])
}

func TestLoadWithoutCache(t *testing.T) {
	roomID := uuid.New()
	repo := &fakeRepo{models: map[uuid.UUID]string{roomID: "from-db"}}
	store := newStore(repo, nil)

	model, err := store.Load(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, "from-db", model)
}
