package app

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Orchestrator lifecycle states.
const (
	StateRunning int32 = iota
	StateDraining
	StateClosed
	StateForcedExit
)

const (
	// DefaultShutdownTimeout bounds the whole shutdown sequence.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultDrainTimeout bounds the wait for in-flight requests inside the
	// overall budget.
	DefaultDrainTimeout = 20 * time.Second

	drainPollInterval = 100 * time.Millisecond
)

// ShutdownOrchestrator coordinates graceful termination: it flips the
// service into DRAINING (new work rejected, health checks report it), waits
// for the in-flight request set to empty, then runs registered cleanup
// callbacks concurrently. If the overall budget elapses first the process is
// forcibly exited non-zero.
type ShutdownOrchestrator struct {
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
	DrainTimeout    time.Duration

	state    atomic.Int32
	inFlight atomic.Int64

	mu       sync.Mutex
	handlers []shutdownHandler

	// exit is swapped in tests.
	exit func(code int)
}

type shutdownHandler struct {
	name string
	fn   func(ctx context.Context) error
}

func NewShutdownOrchestrator(logger *slog.Logger) *ShutdownOrchestrator {
	return &ShutdownOrchestrator{
		Logger:          logger,
		ShutdownTimeout: DefaultShutdownTimeout,
		DrainTimeout:    DefaultDrainTimeout,
		exit:            os.Exit,
	}
}

// Begin registers a unit of work with the in-flight set. It reports ok=false
// once draining has begun; callers must then reject the work. The release
// func must be called exactly once when the work completes.
func (o *ShutdownOrchestrator) Begin() (release func(), ok bool) {
	if o.state.Load() != StateRunning {
		return nil, false
	}
	o.inFlight.Add(1)

	// A drain may have started between the state check and the increment;
	// the count is already visible to the drain loop either way, so the
	// request is allowed to finish.
	var once sync.Once
	return func() {
		once.Do(func() { o.inFlight.Add(-1) })
	}, true
}

// Draining reports whether shutdown has begun.
func (o *ShutdownOrchestrator) Draining() bool {
	return o.state.Load() != StateRunning
}

// InFlight reports the current in-flight request count.
func (o *ShutdownOrchestrator) InFlight() int64 {
	return o.inFlight.Load()
}

// AddShutdownHandler registers a named cleanup callback. Handlers run
// concurrently during shutdown; individual failures are logged, not fatal.
func (o *ShutdownOrchestrator) AddShutdownHandler(name string, fn func(ctx context.Context) error) {
	o.mu.Lock()
	o.handlers = append(o.handlers, shutdownHandler{name: name, fn: fn})
	o.mu.Unlock()
}

// Shutdown executes the full sequence. Safe to call once; repeat calls are
// no-ops. Returns after cleanup completes or the budget is spent.
func (o *ShutdownOrchestrator) Shutdown() {
	if !o.state.CompareAndSwap(StateRunning, StateDraining) {
		return
	}

	o.Logger.Info("shutdown started, draining",
		"in_flight", o.inFlight.Load(),
		"drain_timeout", o.DrainTimeout,
		"shutdown_timeout", o.ShutdownTimeout)

	// Forced exit backstop for the whole sequence.
	forced := time.AfterFunc(o.ShutdownTimeout, func() {
		o.state.Store(StateForcedExit)
		o.Logger.Error("shutdown budget exhausted, forcing exit",
			"in_flight", o.inFlight.Load())
		o.exit(1)
	})
	defer forced.Stop()

	o.drain()
	o.runHandlers()

	o.state.Store(StateClosed)
	o.Logger.Info("shutdown complete")
}

// drain polls the in-flight count until it reaches zero or the drain budget
// elapses, logging progress once a second.
func (o *ShutdownOrchestrator) drain() {
	deadline := time.Now().Add(o.DrainTimeout)
	lastLog := time.Now()

	for {
		n := o.inFlight.Load()
		if n == 0 {
			o.Logger.Info("drain complete")
			return
		}
		if time.Now().After(deadline) {
			o.Logger.Warn("drain budget elapsed with requests still in flight",
				"in_flight", n)
			return
		}
		if time.Since(lastLog) >= time.Second {
			o.Logger.Info("draining", "in_flight", n)
			lastLog = time.Now()
		}
		time.Sleep(drainPollInterval)
	}
}

// runHandlers executes all registered cleanup callbacks concurrently under
// the remaining budget.
func (o *ShutdownOrchestrator) runHandlers() {
	o.mu.Lock()
	handlers := make([]shutdownHandler, len(o.handlers))
	copy(handlers, o.handlers)
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(h shutdownHandler) {
			defer wg.Done()
			if err := h.fn(ctx); err != nil {
				o.Logger.Error("shutdown handler failed", "handler", h.name, "err", err)
				return
			}
			o.Logger.Debug("shutdown handler finished", "handler", h.name)
		}(h)
	}
	wg.Wait()
}
