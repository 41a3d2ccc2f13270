// Package schedule provides the single-threaded cooperative executor that
// owns ability state. Work posted from any goroutine, timers and per-tick
// hooks all run on whichever goroutine drives Tick (normally Run).
package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// maxTimerRounds bounds how many times one Tick re-checks the timer queue,
// so chains of zero-delay timers cannot starve the tick hooks.
const maxTimerRounds = 64

// Executor runs posted work, timers and tick hooks on one logical thread.
type Executor struct {
	clock  Clock
	logger *zap.Logger

	mu     sync.Mutex
	inbox  []func()
	notify chan struct{}

	timers *timerQueue

	hooksMu sync.Mutex
	hooks   []func(now time.Time)

	ticks atomic.Uint64
}

// NewExecutor creates an executor reading time from clock.
// A nil clock falls back to SystemClock.
func NewExecutor(clock Clock, logger *zap.Logger) *Executor {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		clock:  clock,
		logger: logger,
		notify: make(chan struct{}, 1),
		timers: newTimerQueue(),
	}
}

// Now returns the executor clock's current time.
func (e *Executor) Now() time.Time {
	return e.clock.Now()
}

// Post enqueues fn to run on the executor goroutine. Safe for concurrent use.
func (e *Executor) Post(fn func()) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.inbox = append(e.inbox, fn)
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// RunPending drains posted work, including work posted while draining,
// and returns how many functions ran.
func (e *Executor) RunPending() int {
	ran := 0
	for {
		e.mu.Lock()
		batch := e.inbox
		e.inbox = nil
		e.mu.Unlock()

		if len(batch) == 0 {
			return ran
		}
		for _, fn := range batch {
			fn()
			ran++
		}
	}
}

// After runs fn once, d from now, unless ctx is done by then.
func (e *Executor) After(ctx context.Context, d time.Duration, fn func()) *Handle {
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if d < 0 {
		d = 0
	}
	t := &timer{
		executeAt: e.clock.Now().Add(d),
		ctx:       ctx,
		fn:        fn,
	}
	e.timers.Push(t)
	return &Handle{t: t}
}

// Every runs fn every interval until ctx is done or the handle is cancelled.
// The first run happens one interval from now.
func (e *Executor) Every(ctx context.Context, interval time.Duration, fn func()) *Handle {
	if fn == nil {
		return nil
	}
	if interval <= 0 {
		e.logger.Error("periodic task requires a positive interval",
			zap.Duration("interval", interval))
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t := &timer{
		executeAt: e.clock.Now().Add(interval),
		ctx:       ctx,
		fn:        fn,
		interval:  interval,
	}
	e.timers.Push(t)
	return &Handle{t: t}
}

// OnTick registers a hook invoked at the end of every Tick.
func (e *Executor) OnTick(fn func(now time.Time)) {
	if fn == nil {
		return
	}
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.hooks = append(e.hooks, fn)
}

// Tick advances the executor by one scheduling pass at the clock's time.
func (e *Executor) Tick() {
	now := e.clock.Now()
	e.ticks.Add(1)

	e.RunPending()

	for round := 0; round < maxTimerRounds; round++ {
		due := e.timers.PopDue(now)
		if len(due) == 0 {
			break
		}
		for _, t := range due {
			// Cancellation may land while earlier timers in this batch ran.
			if t.dead() {
				continue
			}
			t.fn()
			if t.interval > 0 && !t.dead() {
				next := t.executeAt.Add(t.interval)
				if !next.After(now) {
					next = now.Add(t.interval)
				}
				t.executeAt = next
				e.timers.Push(t)
			}
			e.RunPending()
		}
	}

	e.hooksMu.Lock()
	hooks := make([]func(time.Time), len(e.hooks))
	copy(hooks, e.hooks)
	e.hooksMu.Unlock()

	for _, hook := range hooks {
		hook(now)
	}

	e.RunPending()
}

// Ticks returns how many times Tick has run.
func (e *Executor) Ticks() uint64 {
	return e.ticks.Load()
}

// PendingTimers returns the number of queued timers, cancelled ones included.
func (e *Executor) PendingTimers() int {
	return e.timers.Len()
}

// Run drives Tick at a fixed interval until ctx is done. Posted work is
// picked up between ticks without waiting for the next deadline.
func (e *Executor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("executor started", zap.Duration("tick_interval", interval))

	for {
		select {
		case <-ctx.Done():
			e.RunPending()
			e.logger.Info("executor stopped", zap.Uint64("ticks", e.Ticks()))
			return ctx.Err()
		case <-ticker.C:
			e.Tick()
		case <-e.notify:
			e.RunPending()
		}
	}
}
