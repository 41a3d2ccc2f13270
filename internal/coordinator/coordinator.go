// Package coordinator owns the set of active abilities and the movement
// pipeline they plug into.
//
// Every public method is safe to call from any goroutine: the work is posted
// to the schedule.Executor and performed on its goroutine, so activation,
// refresh, expiry and deactivation never interleave. Query methods read a
// lock-protected view and may lag posted work by one executor pass.
package coordinator

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/legerdo/ability-input-go/internal/ability"
	"github.com/legerdo/ability-input-go/internal/movement"
	"github.com/legerdo/ability-input-go/internal/schedule"
)

// Options configures a Coordinator. Executor is required; the channel and
// output are created when nil.
type Options struct {
	Executor  *schedule.Executor
	Channel   *movement.Channel
	Output    *movement.Output
	Logger    *zap.Logger
	Abilities []ability.Ability
}

// activation is the cancellation scope of one active ability.
type activation struct {
	ctx    context.Context
	cancel context.CancelFunc
	expiry *schedule.Handle

	// seq orders activations; refresh keeps it.
	seq       uint64
	startedAt time.Time
	expiresAt time.Time
	refreshes int
}

type binding struct {
	event  *ability.ActivationEvent
	handle int
}

// Coordinator converts raw movement into processed movement through the
// transformers of the currently active abilities.
type Coordinator struct {
	exec    *schedule.Executor
	channel *movement.Channel
	output  *movement.Output
	logger  *zap.Logger

	// ctx outlives individual activations and is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards the fields below. They are only written on the executor
	// goroutine; mu lets other goroutines read them.
	mu         sync.RWMutex
	available  []ability.Ability
	active     map[ability.Ability]*activation
	lastInput  mgl64.Vec2
	continuous bool
	closed     bool
	bindings   []binding

	seq          uint64
	republishing bool
	publishes    atomic.Uint64
}

// New creates a coordinator and registers its continuous-movement hook on
// the executor.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Executor == nil {
		logger.Warn("no executor supplied, using a system-clock executor")
		opts.Executor = schedule.NewExecutor(schedule.SystemClock{}, logger)
	}
	if opts.Channel == nil {
		opts.Channel = movement.NewChannel(logger)
	}
	if opts.Output == nil {
		opts.Output = movement.NewOutput()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		exec:    opts.Executor,
		channel: opts.Channel,
		output:  opts.Output,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[ability.Ability]*activation),
	}
	for _, a := range opts.Abilities {
		c.addAbility(a)
	}

	c.exec.OnTick(c.tick)
	return c
}

// Channel returns the movement channel abilities subscribe to.
func (c *Coordinator) Channel() *movement.Channel {
	return c.channel
}

// Output returns the processed movement sink.
func (c *Coordinator) Output() *movement.Output {
	return c.output
}

// HandleMovement records v as the last input and publishes it.
func (c *Coordinator) HandleMovement(v mgl64.Vec2) {
	c.exec.Post(func() { c.handleMovement(v) })
}

// Activate requests activation of a.
func (c *Coordinator) Activate(a ability.Ability) {
	c.exec.Post(func() { c.activate(a) })
}

// Deactivate requests early deactivation of a.
func (c *Coordinator) Deactivate(a ability.Ability) {
	c.exec.Post(func() { c.deactivate(a) })
}

// AddAbility makes a eligible for activation.
func (c *Coordinator) AddAbility(a ability.Ability) {
	c.exec.Post(func() { c.addAbility(a) })
}

// RemoveAbility makes a ineligible, deactivating it first when active.
func (c *Coordinator) RemoveAbility(a ability.Ability) {
	c.exec.Post(func() { c.removeAbility(a) })
}

// Bind routes activation requests raised on ev to this coordinator.
func (c *Coordinator) Bind(ev *ability.ActivationEvent) {
	if ev == nil {
		c.logger.Error("activation event is nil, cannot bind")
		return
	}
	handle := ev.Subscribe(c.Activate)

	c.mu.Lock()
	c.bindings = append(c.bindings, binding{event: ev, handle: handle})
	c.mu.Unlock()
}

// Close unbinds activation events, deactivates every active ability in
// activation order and cancels all outstanding scopes.
func (c *Coordinator) Close() {
	c.exec.Post(c.close)
}

func (c *Coordinator) handleMovement(v mgl64.Vec2) {
	c.mu.Lock()
	c.lastInput = v
	c.mu.Unlock()

	c.publish(v)
}

func (c *Coordinator) activate(a ability.Ability) {
	if a == nil {
		c.logger.Error("attempted to activate a nil ability", zap.Error(ErrNilAbility))
		return
	}
	log := c.logger.With(zap.String("ability", a.Name()))

	if c.closed {
		log.Warn("activation rejected", zap.Error(ErrClosed))
		return
	}
	if !c.isAvailable(a) {
		log.Warn("activation rejected", zap.Error(ErrUnknownAbility))
		return
	}

	if act, ok := c.active[a]; ok {
		if !a.Config().RefreshAbility {
			log.Warn("activation ignored",
				zap.Error(ErrAlreadyActive),
				zap.Time("expires_at", act.expiresAt))
			return
		}
		c.refresh(a, act)
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.seq++
	act := &activation{
		ctx:       ctx,
		cancel:    cancel,
		seq:       c.seq,
		startedAt: c.exec.Now(),
	}

	c.mu.Lock()
	c.active[a] = act
	c.continuous = c.requiresContinuous(nil)
	c.mu.Unlock()

	c.runActivation(a, act)
}

// runActivation invokes the ability's activation hook, makes its effect
// visible, then waits out the duration on the executor.
func (c *Coordinator) runActivation(a ability.Ability, act *activation) {
	cfg := a.Config()
	c.logger.Info("activating ability",
		zap.String("ability", a.Name()),
		zap.Duration("duration", cfg.Duration),
		zap.Bool("continuous", cfg.RequiresContinuousMovement))

	a.Activate(c.ctx, c.channel, c.exec)
	if act.ctx.Err() != nil {
		return
	}

	c.republish()
	c.armExpiry(a, act)
}

func (c *Coordinator) armExpiry(a ability.Ability, act *activation) {
	d := a.Config().Duration
	expiry := c.exec.After(act.ctx, d, func() { c.expire(a, act) })

	c.mu.Lock()
	act.expiresAt = c.exec.Now().Add(d)
	act.expiry = expiry
	c.mu.Unlock()
}

// refresh swaps the activation scope and restarts the duration. The ability
// stays subscribed throughout, so its hook is not invoked again.
func (c *Coordinator) refresh(a ability.Ability, old *activation) {
	old.cancel()
	old.expiry.Cancel()

	ctx, cancel := context.WithCancel(c.ctx)
	next := &activation{
		ctx:       ctx,
		cancel:    cancel,
		seq:       old.seq,
		startedAt: old.startedAt,
		refreshes: old.refreshes + 1,
	}

	c.mu.Lock()
	c.active[a] = next
	c.mu.Unlock()

	c.armExpiry(a, next)

	c.logger.Info("ability duration refreshed",
		zap.String("ability", a.Name()),
		zap.Time("expires_at", next.expiresAt),
		zap.Int("refreshes", next.refreshes))
}

// expire runs when an activation's duration elapses without cancellation.
func (c *Coordinator) expire(a ability.Ability, act *activation) {
	if act.ctx.Err() != nil {
		return
	}
	if current, ok := c.active[a]; !ok || current != act {
		return
	}

	c.runDeactivation(a)
	c.release(a)

	c.logger.Info("ability expired and was deactivated",
		zap.String("ability", a.Name()),
		zap.Int("refreshes", act.refreshes))
}

func (c *Coordinator) deactivate(a ability.Ability) {
	if a == nil {
		c.logger.Error("attempted to deactivate a nil ability", zap.Error(ErrNilAbility))
		return
	}
	if _, ok := c.active[a]; !ok {
		c.logger.Warn("deactivation ignored",
			zap.String("ability", a.Name()),
			zap.Error(ErrNotActive))
		return
	}

	c.release(a)
	c.runDeactivation(a)
}

// runDeactivation recomputes the continuous flag without a, invokes the
// deactivation hook and re-publishes so the effect disappears immediately.
func (c *Coordinator) runDeactivation(a ability.Ability) {
	c.mu.Lock()
	c.continuous = c.requiresContinuous(a)
	c.mu.Unlock()

	c.logger.Info("deactivating ability", zap.String("ability", a.Name()))
	a.Deactivate(c.channel)

	c.republish()
}

// release removes a from the active set and cancels its scope. It is the
// only place keys leave the set.
func (c *Coordinator) release(a ability.Ability) {
	act, ok := c.active[a]
	if !ok {
		return
	}
	act.cancel()
	act.expiry.Cancel()

	c.mu.Lock()
	delete(c.active, a)
	c.mu.Unlock()
}

func (c *Coordinator) addAbility(a ability.Ability) {
	if a == nil {
		c.logger.Error("attempted to add a nil ability", zap.Error(ErrNilAbility))
		return
	}
	if c.isAvailable(a) {
		c.logger.Warn("ability not added",
			zap.String("ability", a.Name()),
			zap.Error(ErrAlreadyRegistered))
		return
	}

	c.mu.Lock()
	c.available = append(c.available, a)
	c.mu.Unlock()

	c.logger.Debug("ability added", zap.String("ability", a.Name()))
}

func (c *Coordinator) removeAbility(a ability.Ability) {
	if a == nil {
		c.logger.Error("attempted to remove a nil ability", zap.Error(ErrNilAbility))
		return
	}
	idx := c.indexOf(a)
	if idx < 0 {
		c.logger.Warn("ability not removed",
			zap.String("ability", a.Name()),
			zap.Error(ErrNotRegistered))
		return
	}

	if _, ok := c.active[a]; ok {
		c.deactivate(a)
	}

	c.mu.Lock()
	c.available = append(c.available[:idx:idx], c.available[idx+1:]...)
	c.mu.Unlock()

	c.logger.Debug("ability removed", zap.String("ability", a.Name()))
}

func (c *Coordinator) close() {
	if c.closed {
		return
	}

	c.mu.Lock()
	bindings := c.bindings
	c.bindings = nil
	c.mu.Unlock()
	for _, b := range bindings {
		b.event.Unsubscribe(b.handle)
	}

	for _, a := range c.activeInOrder() {
		c.release(a)
		c.runDeactivation(a)
	}

	c.mu.Lock()
	c.closed = true
	c.continuous = false
	c.mu.Unlock()

	c.cancel()
	c.logger.Info("coordinator closed")
}

// tick publishes the last input every executor tick while any active
// ability needs continuous movement.
func (c *Coordinator) tick(time.Time) {
	if c.closed || !c.continuous {
		return
	}
	c.publish(c.lastInput)
}

// republish re-runs the last input through the pipeline. Nested calls are
// dropped. A zero input is skipped unless the output still holds a stale
// non-zero value.
func (c *Coordinator) republish() {
	if c.republishing {
		return
	}
	c.republishing = true
	defer func() { c.republishing = false }()

	if movement.IsZero(c.lastInput) && movement.IsZero(c.output.Value()) {
		return
	}

	c.publish(c.lastInput)
	c.logger.Debug("movement re-published",
		zap.Float64("x", c.lastInput[0]),
		zap.Float64("y", c.lastInput[1]))
}

func (c *Coordinator) publish(v mgl64.Vec2) {
	sig := movement.NewSignal(v)
	c.channel.Publish(sig)
	c.output.Set(sig.Movement)
	c.publishes.Add(1)
}

// requiresContinuous reports whether any active ability other than exclude
// needs continuous movement. Caller must hold mu or run on the executor.
func (c *Coordinator) requiresContinuous(exclude ability.Ability) bool {
	for a := range c.active {
		if a == exclude {
			continue
		}
		if a.Config().RequiresContinuousMovement {
			return true
		}
	}
	return false
}

func (c *Coordinator) isAvailable(a ability.Ability) bool {
	return c.indexOf(a) >= 0
}

func (c *Coordinator) indexOf(a ability.Ability) int {
	for i, candidate := range c.available {
		if candidate == a {
			return i
		}
	}
	return -1
}

func (c *Coordinator) activeInOrder() []ability.Ability {
	abilities := make([]ability.Ability, 0, len(c.active))
	for a := range c.active {
		abilities = append(abilities, a)
	}
	sort.Slice(abilities, func(i, j int) bool {
		return c.active[abilities[i]].seq < c.active[abilities[j]].seq
	})
	return abilities
}
