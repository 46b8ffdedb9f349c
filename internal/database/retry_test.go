package database

import (
	"context"
	"testing"

	"devfeed/internal/utils"

	"github.com/stretchr/testify/assert"
)

// scriptedStore returns the queued errors from RunTransaction, one per call.
type scriptedStore struct {
	LedgerStore
	results []error
	calls   int
}

func (s *scriptedStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	s.calls++
	if len(s.results) == 0 {
		return nil
	}
	err := s.results[0]
	s.results = s.results[1:]
	return err
}

func conflict() error {
	return utils.NewAppError(utils.ErrConflict, "concurrent update", nil)
}

func TestRunWithRetryRecoversFromConflict(t *testing.T) {
	store := &scriptedStore{results: []error{conflict(), conflict(), nil}}
	metrics := utils.NewMetricsCollector()

	err := RunWithRetry(context.Background(), store, 3, "toggle_like", metrics, nil)
	assert.NoError(t, err)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 2.0, metrics.CounterTotal("devfeed_conflict_retries_total", "operation", "toggle_like"))
}

func TestRunWithRetrySurfacesConflictAfterBound(t *testing.T) {
	store := &scriptedStore{results: []error{conflict(), conflict(), conflict(), conflict()}}

	err := RunWithRetry(context.Background(), store, 3, "follow", nil, nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrConflict))
	assert.Equal(t, 3, store.calls)
}

func TestRunWithRetryNeverRetriesUnavailable(t *testing.T) {
	store := &scriptedStore{results: []error{utils.NewUnavailableError("commit", context.DeadlineExceeded), nil}}

	err := RunWithRetry(context.Background(), store, 3, "add_comment", nil, nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnavailable))
	assert.Equal(t, 1, store.calls)
}

func TestRunWithRetryPassesThroughDomainErrors(t *testing.T) {
	store := &scriptedStore{results: []error{utils.NewPostNotFoundError("p1")}}

	err := RunWithRetry(context.Background(), store, 3, "toggle_like", nil, nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
	assert.Equal(t, 1, store.calls)
}

func TestRunWithRetryStopsOnCancelledContext(t *testing.T) {
	store := &scriptedStore{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunWithRetry(ctx, store, 3, "create_post", nil, nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnavailable))
	assert.Equal(t, 0, store.calls)
}
