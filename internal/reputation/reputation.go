// Package reputation derives a user's tier from their level points.
package reputation

import (
	"context"

	"devfeed/internal/database"
	"devfeed/internal/models"
	"devfeed/internal/utils"

	"github.com/rs/zerolog/log"
)

// Lower bound of each tier, highest first.
var thresholds = []struct {
	min  int
	tier models.Tier
}{
	{1000, models.TierGrandmaster},
	{500, models.TierVeteran},
	{100, models.TierExpert},
	{50, models.TierIntermediate},
	{10, models.TierBeginner},
	{0, models.TierNewcomer},
}

// TierOf maps a point total to its tier. Negative totals are treated as zero.
func TierOf(points int) models.Tier {
	for _, t := range thresholds {
		if points >= t.min {
			return t.tier
		}
	}
	return models.TierNewcomer
}

// Engine re-tiers users after their points change.
type Engine struct {
	metrics *utils.MetricsCollector
}

func NewEngine(metrics *utils.MetricsCollector) *Engine {
	return &Engine{metrics: metrics}
}

// Retier reads the user's current points inside tx and writes the derived tier
// only when it differs from the stored one. It never touches points.
func (e *Engine) Retier(ctx context.Context, tx database.Tx, userID string) (models.Tier, bool, error) {
	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return "", false, err
	}

	tier := TierOf(user.LevelPoints)
	if tier == user.Level {
		return tier, false, nil
	}
	if err := tx.SetUserLevel(ctx, userID, tier); err != nil {
		return "", false, err
	}

	log.Debug().
		Str("userId", userID).
		Str("from", string(user.Level)).
		Str("to", string(tier)).
		Int("points", user.LevelPoints).
		Msg("user re-tiered")
	if e.metrics != nil {
		tx.AfterCommit(func() { e.metrics.RecordTierChange(string(tier)) })
	}
	return tier, true, nil
}

// AwardPoints adds delta points to the user and re-tiers them in the same transaction.
func (e *Engine) AwardPoints(ctx context.Context, tx database.Tx, userID string, delta int) error {
	if delta == 0 {
		return nil
	}
	if err := tx.IncrementUser(ctx, userID, models.UserLevelPoints, delta); err != nil {
		return err
	}
	_, _, err := e.Retier(ctx, tx, userID)
	return err
}

// RetierUser is the standalone retier operation, run in its own transaction.
func (e *Engine) RetierUser(ctx context.Context, store database.LedgerStore, maxAttempts int, userID string) (*models.User, error) {
	var result *models.User
	err := database.RunWithRetry(ctx, store, maxAttempts, "retier", e.metrics, func(ctx context.Context, tx database.Tx) error {
		if _, _, err := e.Retier(ctx, tx, userID); err != nil {
			return err
		}
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		result = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
