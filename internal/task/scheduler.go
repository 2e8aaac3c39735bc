// Package task runs periodic maintenance such as closing idle shells and pruning the navigation journal.
package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const logEventRunnerPanicked = "scheduled_runner_panicked"

type RunnerFunc func(context.Context)

// Scheduler calls its runner every interval and whenever Trigger is called.
// A panicking runner is logged and the schedule continues.
type Scheduler struct {
	interval     time.Duration
	runner       RunnerFunc
	logger       *zap.Logger
	trigger      chan struct{}
	controlMutex sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
	runs         atomic.Int64
	panics       atomic.Int64
}

// SchedulerOption customises a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger routes runner panics to logger.
func WithLogger(logger *zap.Logger) SchedulerOption {
	return func(scheduler *Scheduler) {
		if logger != nil {
			scheduler.logger = logger
		}
	}
}

func NewScheduler(interval time.Duration, runner RunnerFunc, options ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	scheduler := &Scheduler{
		interval: interval,
		runner:   runner,
		logger:   zap.NewNop(),
		trigger:  make(chan struct{}, 1),
	}
	for _, option := range options {
		option(scheduler)
	}
	return scheduler
}

func (scheduler *Scheduler) Start(ctx context.Context) {
	if scheduler == nil || scheduler.runner == nil {
		return
	}
	scheduler.controlMutex.Lock()
	if scheduler.cancel != nil {
		scheduler.controlMutex.Unlock()
		return
	}
	runtimeCtx, cancel := context.WithCancel(ctx)
	scheduler.cancel = cancel
	done := make(chan struct{})
	scheduler.done = done
	scheduler.controlMutex.Unlock()

	go scheduler.loop(runtimeCtx, done)
}

// Trigger requests an immediate run. Triggers coalesce while a run is pending.
func (scheduler *Scheduler) Trigger() {
	if scheduler == nil {
		return
	}
	select {
	case scheduler.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the loop and waits for an in-progress run to return.
func (scheduler *Scheduler) Stop() {
	if scheduler == nil {
		return
	}
	scheduler.controlMutex.Lock()
	cancel := scheduler.cancel
	done := scheduler.done
	scheduler.cancel = nil
	scheduler.done = nil
	scheduler.controlMutex.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Runs reports how many runs completed, panicked ones included.
func (scheduler *Scheduler) Runs() int64 {
	if scheduler == nil {
		return 0
	}
	return scheduler.runs.Load()
}

func (scheduler *Scheduler) loop(ctx context.Context, done chan struct{}) {
	timer := time.NewTimer(scheduler.interval)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()
	defer func() {
		if done != nil {
			close(done)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-scheduler.trigger:
			scheduler.run(ctx)
		case <-timer.C:
			scheduler.run(ctx)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(scheduler.interval)
	}
}

func (scheduler *Scheduler) run(ctx context.Context) {
	if scheduler.runner == nil {
		return
	}
	defer scheduler.runs.Inc()
	defer func() {
		if recovered := recover(); recovered != nil {
			scheduler.panics.Inc()
			if scheduler.logger != nil {
				scheduler.logger.Error(logEventRunnerPanicked, zap.Any("panic", recovered))
			}
		}
	}()
	scheduler.runner(ctx)
}
