package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vmdash.io/vmdash/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestNewPools(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	if pools.Reload == nil {
		t.Error("Reload pool is nil")
	}
	if pools.Background == nil {
		t.Error("Background pool is nil")
	}
}

func TestPool_Submit(t *testing.T) {
	ctx := context.Background()
	pools, err := NewPools(ctx, PoolConfig{ReloadPoolSize: 4, BackgroundPoolSize: 1})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	var executed atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	err = pools.Reload.Submit(ctx, func(ctx context.Context) {
		executed.Store(true)
		wg.Done()
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	wg.Wait()
	if !executed.Load() {
		t.Error("Task was not executed")
	}
}

func TestPool_Submit_CancelledContext(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	err = pools.Reload.Submit(cancelledCtx, func(ctx context.Context) {
		t.Error("Task should not execute with cancelled context")
	})
	if err != context.Canceled {
		t.Errorf("Submit() error = %v, want context.Canceled", err)
	}
}

func TestPool_Run_WaitsForAllTasks(t *testing.T) {
	pools, err := NewPools(context.Background(), PoolConfig{ReloadPoolSize: 2, BackgroundPoolSize: 1})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	var count atomic.Int32
	task := func(ctx context.Context) {
		time.Sleep(5 * time.Millisecond)
		count.Add(1)
	}

	pools.Reload.Run(context.Background(), task, task, task, task, task)

	if got := count.Load(); got != 5 {
		t.Fatalf("completed tasks = %d, want 5", got)
	}
}

func TestPool_Run_CancelledContextSkipsTasks(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var count atomic.Int32
	pools.Reload.Run(ctx, func(context.Context) { count.Add(1) })

	if got := count.Load(); got != 0 {
		t.Fatalf("completed tasks = %d, want 0", got)
	}
}

func TestPools_ParentContextClosesPools(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pools, err := NewPools(ctx, DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	cancel()
	err = pools.Background.Submit(context.Background(), func(context.Context) {
		t.Error("task should not run after the parent context ended")
	})
	if err != ErrPoolClosed {
		t.Fatalf("Submit() error = %v, want ErrPoolClosed", err)
	}
}

func TestPools_SubmitAfterShutdown(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	pools.Shutdown()

	err = pools.Reload.Submit(context.Background(), func(context.Context) {})
	if err != ErrPoolClosed {
		t.Fatalf("Submit() error = %v, want ErrPoolClosed", err)
	}
}

func TestPools_Metrics(t *testing.T) {
	pools, err := NewPools(context.Background(), PoolConfig{ReloadPoolSize: 10, BackgroundPoolSize: 3})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	metrics := pools.Metrics()
	if metrics["reload"]["cap"] != 10 {
		t.Errorf("reload cap = %d, want 10", metrics["reload"]["cap"])
	}
	if metrics["background"]["cap"] != 3 {
		t.Errorf("background cap = %d, want 3", metrics["background"]["cap"])
	}
}
