package reputation

import (
	"context"
	"errors"
	"testing"

	"devfeed/internal/database"
	"devfeed/internal/models"
	"devfeed/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierOfBoundaries(t *testing.T) {
	tests := []struct {
		points int
		want   models.Tier
	}{
		{0, models.TierNewcomer},
		{9, models.TierNewcomer},
		{10, models.TierBeginner},
		{49, models.TierBeginner},
		{50, models.TierIntermediate},
		{99, models.TierIntermediate},
		{100, models.TierExpert},
		{499, models.TierExpert},
		{500, models.TierVeteran},
		{999, models.TierVeteran},
		{1000, models.TierGrandmaster},
		{1 << 30, models.TierGrandmaster},
		{-5, models.TierNewcomer},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TierOf(tt.points), "points=%d", tt.points)
	}
}

func newStoreWithUser(t *testing.T, points int, level models.Tier) *database.MemoryStore {
	t.Helper()
	store := database.NewMemoryStore()
	require.NoError(t, store.CreateUser(context.Background(), &models.User{
		ID: "alice", Username: "alice", LevelPoints: points, Level: level,
	}))
	return store
}

func TestRetierWritesOnlyOnChange(t *testing.T) {
	store := newStoreWithUser(t, 55, models.TierBeginner)
	metrics := utils.NewMetricsCollector()
	engine := NewEngine(metrics)
	ctx := context.Background()

	err := store.RunTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		tier, changed, err := engine.Retier(ctx, tx, "alice")
		require.NoError(t, err)
		assert.Equal(t, models.TierIntermediate, tier)
		assert.True(t, changed)

		tier, changed, err = engine.Retier(ctx, tx, "alice")
		require.NoError(t, err)
		assert.Equal(t, models.TierIntermediate, tier)
		assert.False(t, changed)
		return nil
	})
	require.NoError(t, err)

	user, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TierIntermediate, user.Level)
	assert.Equal(t, 55, user.LevelPoints)
	assert.Equal(t, 1.0, metrics.CounterTotal("devfeed_tier_changes_total", "tier", "Intermediate"))
}

func TestAwardPointsCrossesThreshold(t *testing.T) {
	store := newStoreWithUser(t, 8, models.TierNewcomer)
	engine := NewEngine(nil)
	ctx := context.Background()

	require.NoError(t, store.RunTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		return engine.AwardPoints(ctx, tx, "alice", 2)
	}))
	user, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10, user.LevelPoints)
	assert.Equal(t, models.TierBeginner, user.Level)

	require.NoError(t, store.RunTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		return engine.AwardPoints(ctx, tx, "alice", -1)
	}))
	user, err = store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 9, user.LevelPoints)
	assert.Equal(t, models.TierNewcomer, user.Level)
}

func TestRetierUserRepairsStaleTier(t *testing.T) {
	store := newStoreWithUser(t, 1200, models.TierNewcomer)
	engine := NewEngine(nil)

	user, err := engine.RetierUser(context.Background(), store, 3, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TierGrandmaster, user.Level)

	_, err = engine.RetierUser(context.Background(), store, 3, "ghost")
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestTierChangeCountedOnlyAfterCommit(t *testing.T) {
	store := newStoreWithUser(t, 120, models.TierNewcomer)
	metrics := utils.NewMetricsCollector()
	engine := NewEngine(metrics)
	ctx := context.Background()

	err := store.RunTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		_, changed, err := engine.Retier(ctx, tx, "alice")
		require.NoError(t, err)
		assert.True(t, changed)
		return errors.New("later step failed")
	})
	require.Error(t, err)
	assert.Equal(t, 0.0, metrics.CounterTotal("devfeed_tier_changes_total", "tier", "Expert"))

	user, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TierNewcomer, user.Level)

	_, err = engine.RetierUser(ctx, store, 3, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1.0, metrics.CounterTotal("devfeed_tier_changes_total", "tier", "Expert"))
}

// conflictOnceStore fails the first commit with CONFLICT after running the body.
type conflictOnceStore struct {
	*database.MemoryStore
	failed bool
}

func (s *conflictOnceStore) RunTransaction(ctx context.Context, fn database.TxFunc) error {
	if s.failed {
		return s.MemoryStore.RunTransaction(ctx, fn)
	}
	s.failed = true
	return s.MemoryStore.RunTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return utils.NewAppError(utils.ErrConflict, "serialization failure", nil)
	})
}

func TestTierChangeNotDoubleCountedOnConflictRetry(t *testing.T) {
	store := &conflictOnceStore{MemoryStore: newStoreWithUser(t, 600, models.TierNewcomer)}
	metrics := utils.NewMetricsCollector()
	engine := NewEngine(metrics)

	user, err := engine.RetierUser(context.Background(), store, 3, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TierVeteran, user.Level)
	assert.True(t, store.failed)
	assert.Equal(t, 1.0, metrics.CounterTotal("devfeed_tier_changes_total", "tier", "Veteran"))
}
