package database

import (
	"context"

	"devfeed/internal/utils"

	"github.com/rs/zerolog/log"
)

// RunWithRetry runs fn in a transaction, re-executing it from the first read
// when the store reports a conflict. After maxAttempts conflicts the last
// CONFLICT error is returned unchanged. Any other error, UNAVAILABLE included,
// is returned immediately.
func RunWithRetry(ctx context.Context, store LedgerStore, maxAttempts int, operation string, metrics *utils.MetricsCollector, fn TxFunc) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return utils.NewUnavailableError(operation, ctxErr)
		}

		err = store.RunTransaction(ctx, fn)
		if !utils.IsErrorCode(err, utils.ErrConflict) {
			return err
		}

		if attempt < maxAttempts {
			if metrics != nil {
				metrics.IncrementConflictRetries(operation)
			}
			log.Debug().
				Str("operation", operation).
				Int("attempt", attempt).
				Err(err).
				Msg("transaction conflict, retrying")
		}
	}

	log.Warn().Str("operation", operation).Int("attempts", maxAttempts).Msg("transaction conflict retries exhausted")
	return err
}

// afterCommitHooks is embedded by every Tx adapter. A fresh Tx is built per
// attempt, so hooks from an aborted attempt never run.
type afterCommitHooks struct {
	hooks []func()
}

func (h *afterCommitHooks) AfterCommit(fn func()) {
	h.hooks = append(h.hooks, fn)
}

func (h *afterCommitHooks) runHooks() {
	hooks := h.hooks
	h.hooks = nil
	for _, fn := range hooks {
		fn()
	}
}
