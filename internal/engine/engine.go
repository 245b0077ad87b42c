package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/config"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/store"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

type (
	// Engine owns the worker pool that runs workflow instances and the
	// client operations used to start, query, and cancel them
	Engine struct {
		ctx       context.Context
		store     store.Store
		events    Publisher
		prod      topic.Producer[api.InstanceID]
		cons      topic.Consumer[api.InstanceID]
		catalog   *Catalog
		orch      *Orchestrator
		config    *config.Config
		cancel    context.CancelFunc
		clock     Clock
		newID     func() api.InstanceID
		work      chan api.InstanceID
		active    sync.Map // map[api.InstanceID]struct{}
		queued    atomic.Int64
		wg        sync.WaitGroup
		mu        sync.RWMutex
		startOnce sync.Once
		stopOnce  sync.Once
		started   bool
		stopped   bool
	}

	// Dependencies are the collaborators an Engine is built from. Only
	// Store and Catalog are required
	Dependencies struct {
		Store   store.Store
		Catalog *Catalog
		Events  Publisher
		Clock   Clock
		Numbers NumberSource
		Sleep   SleepFunc
		NewID   func() api.InstanceID
	}
)

const recoverTimeout = 30 * time.Second

// New creates an engine from its configuration and dependencies
func New(cfg *config.Config, deps Dependencies) *Engine {
	exec := NewExecutor(api.Duration(cfg.StepTimeout))
	if deps.Clock != nil {
		exec.Clock = deps.Clock
	}
	if deps.Numbers != nil {
		exec.Numbers = deps.Numbers
	}

	orch := NewOrchestrator(
		deps.Store, deps.Catalog, exec, cfg.Retry, deps.Events,
	)
	if deps.Sleep != nil {
		orch.WithSleep(deps.Sleep)
	}

	newID := deps.NewID
	if newID == nil {
		newID = api.NewInstanceID
	}

	ctx, cancel := context.WithCancel(context.Background())
	queue := caravan.NewTopic[api.InstanceID]()
	return &Engine{
		ctx:     ctx,
		cancel:  cancel,
		config:  cfg,
		store:   deps.Store,
		catalog: deps.Catalog,
		events:  orch.events,
		orch:    orch,
		clock:   exec.clock(),
		newID:   newID,
		prod:    queue.NewProducer(),
		cons:    queue.NewConsumer(),
		work:    make(chan api.InstanceID),
	}
}

// Start launches the dispatcher and workers, then re-dispatches every
// instance left Running by a previous process
func (e *Engine) Start() error {
	var err error
	e.startOnce.Do(func() {
		slog.Info("Engine starting",
			slog.Int("workers", e.config.Workers))

		e.mu.Lock()
		e.started = true
		e.mu.Unlock()

		e.wg.Go(e.dispatchLoop)
		for range e.config.Workers {
			e.wg.Go(e.workerLoop)
		}
		err = e.RecoverInstances()
	})
	return err
}

// Stop cancels in-flight steps and waits for the workers to exit. Instances
// interrupted mid-step remain Running at their last checkpoint
func (e *Engine) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		started := e.started
		e.mu.Unlock()

		e.prod.Close()
		e.cancel()
		if !started {
			e.cons.Close()
		}

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			slog.Info("Engine stopped")
		case <-time.After(e.config.ShutdownTimeout):
			err = ErrShutdownTimeout
		}
	})
	return err
}

// Dispatch queues an instance to be run by a worker. An instance already
// being run by this engine is not run twice
func (e *Engine) Dispatch(id api.InstanceID) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return ErrEngineStopped
	}
	e.queued.Add(1)
	message.Send(e.prod, id)
	return nil
}

// RecoverInstances dispatches every Running instance in the store
func (e *Engine) RecoverInstances() error {
	ctx, cancel := context.WithTimeout(e.ctx, recoverTimeout)
	defer cancel()

	ids, err := e.store.List(ctx, api.StatusRunning)
	if err != nil {
		return fmt.Errorf("recover instances: %w", err)
	}
	for _, id := range ids {
		if err := e.Dispatch(id); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		slog.Info("Recovered instances",
			slog.Int("count", len(ids)))
	}
	return nil
}

// Now returns the current time from the engine's clock
func (e *Engine) Now() time.Time {
	return e.clock()
}

func (e *Engine) dispatchLoop() {
	defer e.cons.Close()
	defer e.drainQueue()

	for {
		select {
		case <-e.ctx.Done():
			return
		case id, ok := <-e.cons.Receive():
			if !ok {
				return
			}
			e.queued.Add(-1)
			if _, running := e.active.LoadOrStore(id, struct{}{}); running {
				continue
			}
			select {
			case e.work <- id:
			case <-e.ctx.Done():
				e.active.Delete(id)
				return
			}
		}
	}
}

// drainQueue receives every dispatch still in the topic, so the consumer is
// only closed once the producer has nothing left to deliver to it. Stop
// refuses new dispatches before cancelling, so the count cannot grow here
func (e *Engine) drainQueue() {
	for e.queued.Load() > 0 {
		if _, ok := <-e.cons.Receive(); !ok {
			return
		}
		e.queued.Add(-1)
	}
}

func (e *Engine) workerLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case id := <-e.work:
			e.runInstance(id)
		}
	}
}

func (e *Engine) runInstance(id api.InstanceID) {
	defer e.active.Delete(id)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Instance run panic",
				log.InstanceID(id),
				slog.Any("panic", r))
		}
	}()

	err := e.orch.Run(e.ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		slog.Debug("Instance run interrupted",
			log.InstanceID(id))
	case errors.Is(err, ErrLeaseLost):
		slog.Info("Instance owned by another worker",
			log.InstanceID(id))
	default:
		slog.Error("Instance run failed",
			log.InstanceID(id),
			log.Error(err))
	}
}
