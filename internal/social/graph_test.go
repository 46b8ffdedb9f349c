package social

import (
	"context"
	"sync"
	"testing"
	"time"

	"devfeed/internal/database"
	"devfeed/internal/models"
	"devfeed/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu          sync.Mutex
	sets        map[string][]string
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{sets: make(map[string][]string)}
}

func (c *memoryCache) Get(ctx context.Context, userID string) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.sets[userID]
	return ids, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, userID string, following []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets[userID] = following
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sets, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

func newGraph(t *testing.T, cache FollowSetCache, users ...string) (*Graph, *database.MemoryStore) {
	t.Helper()
	store := database.NewMemoryStore()
	for _, id := range users {
		require.NoError(t, store.CreateUser(context.Background(), &models.User{ID: id, Username: id, Level: models.TierNewcomer}))
	}
	return NewGraph(store, cache, nil, 3), store
}

func TestFollowToggleRestoresState(t *testing.T) {
	graph, store := newGraph(t, nil, "alice", "bob")
	ctx := context.Background()

	res, err := graph.Follow(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, res.Following)
	assert.Equal(t, 1, res.FollowersCount)

	alice, _ := store.GetUser(ctx, "alice")
	bob, _ := store.GetUser(ctx, "bob")
	assert.Equal(t, 1, alice.FollowingCount)
	assert.Equal(t, 1, bob.FollowersCount)

	res, err = graph.Follow(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, res.Following)
	assert.Equal(t, 0, res.FollowersCount)

	alice, _ = store.GetUser(ctx, "alice")
	bob, _ = store.GetUser(ctx, "bob")
	assert.Equal(t, 0, alice.FollowingCount)
	assert.Equal(t, 0, bob.FollowersCount)

	ids, err := graph.FollowingSet(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFollowRejectsSelfAndMissingUsers(t *testing.T) {
	graph, store := newGraph(t, nil, "alice")
	ctx := context.Background()

	_, err := graph.Follow(ctx, "alice", "alice")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidOperation))

	_, err = graph.Follow(ctx, "alice", "ghost")
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))

	_, err = graph.Follow(ctx, "", "alice")
	assert.True(t, utils.IsErrorCode(err, utils.ErrValidation))

	alice, _ := store.GetUser(ctx, "alice")
	assert.Equal(t, 0, alice.FollowingCount)
	assert.Equal(t, 0, alice.FollowersCount)
}

func TestFollowingSetMostRecentFirst(t *testing.T) {
	graph, _ := newGraph(t, nil, "alice", "bob", "carol", "dave")
	ctx := context.Background()

	for _, target := range []string{"bob", "carol", "dave"} {
		_, err := graph.Follow(ctx, "alice", target)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	ids, err := graph.FollowingSet(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"dave", "carol", "bob"}, ids)

	users, err := graph.Following(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "dave", users[0].Username)
}

func TestFollowInvalidatesCache(t *testing.T) {
	cache := newMemoryCache()
	graph, _ := newGraph(t, cache, "alice", "bob")
	ctx := context.Background()

	ids, err := graph.FollowingSet(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, ids)
	cached, ok, _ := cache.Get(ctx, "alice")
	assert.True(t, ok)
	assert.Empty(t, cached)

	_, err = graph.Follow(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, cache.invalidated)

	ids, err = graph.FollowingSet(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, ids)
}

func TestConcurrentFollowsKeepCountersConsistent(t *testing.T) {
	followers := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	graph, store := newGraph(t, nil, append(followers, "star")...)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, f := range followers {
		wg.Add(1)
		go func(f string) {
			defer wg.Done()
			_, err := graph.Follow(ctx, f, "star")
			assert.NoError(t, err)
		}(f)
	}
	wg.Wait()

	star, err := store.GetUser(ctx, "star")
	require.NoError(t, err)
	assert.Equal(t, len(followers), star.FollowersCount)
}
