// Package engine dispatches feed and engagement requests onto a pool of
// protoactor workers.
package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"devfeed/internal/config"
	"devfeed/internal/database"
	"devfeed/internal/engagement"
	"devfeed/internal/feed"
	"devfeed/internal/profiles"
	"devfeed/internal/reputation"
	"devfeed/internal/social"
	"devfeed/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

// Services are the components the workers call into.
type Services struct {
	Store       database.LedgerStore
	Profiles    *profiles.Service
	Graph       *social.Graph
	Ledger      *engagement.Ledger
	Feed        *feed.Assembler
	Reputation  *reputation.Engine
	MaxAttempts int
}

// NewServices wires the components over one store. cache may be nil.
func NewServices(store database.LedgerStore, cache social.FollowSetCache, cfg *config.Config, metrics *utils.MetricsCollector) *Services {
	attempts := cfg.Database.MaxConflictRetries
	rep := reputation.NewEngine(metrics)
	graph := social.NewGraph(store, cache, metrics, attempts)
	return &Services{
		Store:       store,
		Profiles:    profiles.NewService(store),
		Graph:       graph,
		Ledger:      engagement.NewLedger(store, rep, metrics, attempts),
		Feed:        feed.NewAssembler(store, graph, cfg.Feed, metrics),
		Reputation:  rep,
		MaxAttempts: attempts,
	}
}

// Engine coordinates communication between callers and the worker actors
type Engine struct {
	system  *actor.ActorSystem
	workers []*actor.PID
	next    uint64
	metrics *utils.MetricsCollector
}

func NewEngine(system *actor.ActorSystem, services *Services, workers int, metrics *utils.MetricsCollector) *Engine {
	if workers < 1 {
		workers = 1
	}
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewWorkerActor(services, metrics)
	})

	e := &Engine{system: system, metrics: metrics}
	for i := 0; i < workers; i++ {
		e.workers = append(e.workers, system.Root.Spawn(props))
	}
	return e
}

// Request sends msg to the next worker and waits up to timeout for its reply.
// Errors produced by the services are returned as *utils.AppError; a reply
// that does not arrive in time is UNAVAILABLE.
func (e *Engine) Request(msg Message, timeout time.Duration) (interface{}, error) {
	return e.RequestContext(context.Background(), msg, timeout)
}

// RequestContext is Request bound to ctx. Cancelling ctx cancels the worker's
// store calls and returns UNAVAILABLE without waiting for the reply.
func (e *Engine) RequestContext(ctx context.Context, msg Message, timeout time.Duration) (interface{}, error) {
	if e.metrics != nil {
		e.metrics.IncrementRequests()
	}
	if err := ctx.Err(); err != nil {
		err = utils.NewUnavailableError("request", err)
		e.recordError(err)
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
		timeout = time.Until(d)
	}
	msg.setCall(deadline, ctx.Done())
	pid := e.workers[atomic.AddUint64(&e.next, 1)%uint64(len(e.workers))]

	type reply struct {
		result interface{}
		err    error
	}
	replies := make(chan reply, 1)
	go func() {
		result, err := e.system.Root.RequestFuture(pid, msg, timeout).Result()
		replies <- reply{result, err}
	}()

	var result interface{}
	var err error
	select {
	case r := <-replies:
		result, err = r.result, r.err
	case <-ctx.Done():
		err = utils.NewUnavailableError("request", ctx.Err())
		e.recordError(err)
		return nil, err
	}

	if err != nil {
		if errors.Is(err, actor.ErrTimeout) {
			err = utils.NewUnavailableError("request", err)
		} else {
			err = utils.NewAppError(utils.ErrUnavailable, "engine unavailable", err)
		}
		e.recordError(err)
		return nil, err
	}

	if appErr, ok := result.(*utils.AppError); ok {
		e.recordError(appErr)
		return nil, appErr
	}
	return result, nil
}

func (e *Engine) recordError(err error) {
	if e.metrics != nil {
		e.metrics.IncrementErrors(utils.ErrorCode(err))
	}
}

// Workers reports the size of the pool.
func (e *Engine) Workers() int {
	return len(e.workers)
}

// Stop stops every worker after its current message.
func (e *Engine) Stop() {
	for _, pid := range e.workers {
		e.system.Root.Stop(pid)
	}
}
