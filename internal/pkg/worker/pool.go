// Package worker provides goroutine pool management.
//
// Concurrent catalog reloads and the watch loop run through these pools
// instead of naked goroutines, with context propagation.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
	life context.Context
}

// Pools is the worker pool collection.
type Pools struct {
	// Reload runs backend fetches (catalog reloads, dashboard loads).
	Reload *Pool
	// Background runs long-lived loops such as the watch refresher.
	Background *Pool

	cancel context.CancelFunc
}

// MinBackgroundPoolSize covers the long-lived loops of the live dashboard:
// the websocket hub and the refresh loop each hold a background worker.
const MinBackgroundPoolSize = 2

// PoolConfig contains worker pool configuration.
type PoolConfig struct {
	ReloadPoolSize     int
	BackgroundPoolSize int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		ReloadPoolSize:     8,
		BackgroundPoolSize: 2,
	}
}

// NewPools creates the worker pool collection. Once ctx is done the pools
// refuse new tasks and skip queued ones.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	life, cancel := context.WithCancel(ctx)

	panicHandler := func(p interface{}) {
		logger.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	reloadAnts, err := ants.NewPool(cfg.ReloadPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		cancel()
		return nil, err
	}

	backgroundAnts, err := ants.NewPool(cfg.BackgroundPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(time.Minute),
	)
	if err != nil {
		reloadAnts.Release()
		cancel()
		return nil, err
	}

	return &Pools{
		Reload:     &Pool{pool: reloadAnts, name: "reload", life: life},
		Background: &Pool{pool: backgroundAnts, name: "background", life: life},
		cancel:     cancel,
	}, nil
}

// Submit submits a context-aware task.
// If ctx is already cancelled, returns ctx.Err() without submitting.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.life.Err() != nil {
		return ErrPoolClosed
	}

	err := p.pool.Submit(func() {
		if ctx.Err() != nil || p.life.Err() != nil {
			logger.Debug("Task skipped: context cancelled",
				zap.String("pool", p.name),
			)
			return
		}
		task(ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// Free returns the number of idle workers.
func (p *Pool) Free() int {
	return p.pool.Free()
}

// Run submits every task and blocks until all of them have returned.
// A task that cannot be submitted is run on the caller's goroutine; tasks
// not yet started when ctx is cancelled are skipped.
func (p *Pool) Run(ctx context.Context, tasks ...Task) {
	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		if ctx.Err() != nil || p.life.Err() != nil {
			break
		}
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			task(ctx)
		})
		if err != nil {
			logger.Warn("Pool submit failed, running inline",
				zap.String("pool", p.name),
				zap.Error(err),
			)
			func() {
				defer wg.Done()
				task(ctx)
			}()
		}
	}
	wg.Wait()
}

// Shutdown stops accepting tasks and waits for running ones (max 10s).
func (p *Pools) Shutdown() {
	p.cancel()

	const shutdownTimeout = 10 * time.Second
	if err := p.Reload.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Reload pool shutdown timeout", zap.Error(err))
	}
	if err := p.Background.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Background pool shutdown timeout", zap.Error(err))
	}
}

// Metrics returns pool usage for the live dashboard.
func (p *Pools) Metrics() map[string]map[string]int {
	return map[string]map[string]int{
		"reload": {
			"running": p.Reload.pool.Running(),
			"free":    p.Reload.pool.Free(),
			"cap":     p.Reload.pool.Cap(),
		},
		"background": {
			"running": p.Background.pool.Running(),
			"free":    p.Background.pool.Free(),
			"cap":     p.Background.pool.Cap(),
		},
	}
}
