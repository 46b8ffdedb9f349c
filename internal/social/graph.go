// Package social maintains follow edges between users.
package social

import (
	"context"
	"time"

	"devfeed/internal/database"
	"devfeed/internal/models"
	"devfeed/internal/utils"

	"github.com/rs/zerolog/log"
)

// FollowSetCache caches a user's following list, most recently followed first.
type FollowSetCache interface {
	Get(ctx context.Context, userID string) ([]string, bool, error)
	Set(ctx context.Context, userID string, following []string) error
	Invalidate(ctx context.Context, userID string) error
}

type FollowResult struct {
	Following      bool `json:"following"`
	FollowersCount int  `json:"followersCount"`
}

type Graph struct {
	store       database.LedgerStore
	cache       FollowSetCache
	metrics     *utils.MetricsCollector
	maxAttempts int
}

// NewGraph builds a Graph. cache may be nil.
func NewGraph(store database.LedgerStore, cache FollowSetCache, metrics *utils.MetricsCollector, maxAttempts int) *Graph {
	return &Graph{store: store, cache: cache, metrics: metrics, maxAttempts: maxAttempts}
}

// Follow toggles the edge followerID -> targetID together with both counters.
func (g *Graph) Follow(ctx context.Context, followerID, targetID string) (*FollowResult, error) {
	if followerID == "" || targetID == "" {
		return nil, utils.NewValidationError("follower and target ids are required")
	}
	if followerID == targetID {
		return nil, utils.NewAppError(utils.ErrInvalidOperation, "cannot follow yourself", nil)
	}

	start := time.Now()
	var result *FollowResult
	err := database.RunWithRetry(ctx, g.store, g.maxAttempts, "follow", g.metrics, func(ctx context.Context, tx database.Tx) error {
		if _, err := tx.GetUser(ctx, followerID); err != nil {
			return err
		}
		if _, err := tx.GetUser(ctx, targetID); err != nil {
			return err
		}

		existing, err := tx.FindFollow(ctx, followerID, targetID)
		if err != nil {
			return err
		}

		delta := 1
		if existing != nil {
			if err := tx.DeleteFollow(ctx, followerID, targetID); err != nil {
				return err
			}
			delta = -1
		} else {
			edge := &models.FollowEdge{FollowerID: followerID, FolloweeID: targetID, CreatedAt: time.Now()}
			if err := tx.InsertFollow(ctx, edge); err != nil {
				return err
			}
		}

		if err := tx.IncrementUser(ctx, followerID, models.UserFollowingCount, delta); err != nil {
			return err
		}
		if err := tx.IncrementUser(ctx, targetID, models.UserFollowersCount, delta); err != nil {
			return err
		}

		target, err := tx.GetUser(ctx, targetID)
		if err != nil {
			return err
		}
		result = &FollowResult{Following: delta > 0, FollowersCount: target.FollowersCount}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if err := g.cache.Invalidate(ctx, followerID); err != nil {
			log.Warn().Err(err).Str("userId", followerID).Msg("failed to invalidate follow set cache")
		}
	}
	if g.metrics != nil {
		g.metrics.AddOperationLatency("follow", time.Since(start))
	}
	return result, nil
}

// FollowingSet returns the ids userID follows, most recently followed first.
func (g *Graph) FollowingSet(ctx context.Context, userID string) ([]string, error) {
	if g.cache != nil {
		ids, ok, err := g.cache.Get(ctx, userID)
		if err != nil {
			log.Warn().Err(err).Str("userId", userID).Msg("follow set cache read failed")
		} else if ok {
			return ids, nil
		}
	}

	edges, err := g.store.FollowingEdges(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(edges))
	for i, e := range edges {
		ids[i] = e.FolloweeID
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, userID, ids); err != nil {
			log.Warn().Err(err).Str("userId", userID).Msg("follow set cache write failed")
		}
	}
	return ids, nil
}

// Following resolves the follow set to user records, skipping ids with no profile.
func (g *Graph) Following(ctx context.Context, userID string) ([]*models.User, error) {
	ids, err := g.FollowingSet(ctx, userID)
	if err != nil {
		return nil, err
	}
	users, err := g.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	result := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			result = append(result, u)
		}
	}
	return result, nil
}
