package coordinator

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/legerdo/ability-input-go/internal/ability"
	"github.com/legerdo/ability-input-go/internal/movement"
	"github.com/legerdo/ability-input-go/internal/schedule"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// spy is an ability that counts its lifecycle calls.
type spy struct {
	cfg ability.Config
	fn  func(mgl64.Vec2) mgl64.Vec2

	handle     movement.Handle
	subscribed bool

	activateCalls   int
	deactivateCalls int
	subscribes      int
	unsubscribes    int
}

func newSpy(name string, duration time.Duration, fn func(mgl64.Vec2) mgl64.Vec2) *spy {
	return &spy{cfg: ability.Config{Name: name, Duration: duration}, fn: fn}
}

func (s *spy) ID() string             { return "spy-" + s.cfg.Name }
func (s *spy) Name() string           { return s.cfg.Name }
func (s *spy) Config() ability.Config { return s.cfg }

func (s *spy) Activate(_ context.Context, ch *movement.Channel, _ ability.Tasks) {
	s.activateCalls++
	if s.subscribed {
		return
	}
	s.handle = ch.Subscribe(s.cfg.Name, s.Transform)
	s.subscribed = true
	s.subscribes++
}

func (s *spy) Deactivate(ch *movement.Channel) {
	s.deactivateCalls++
	if !s.subscribed {
		return
	}
	ch.Unsubscribe(s.handle)
	s.subscribed = false
	s.unsubscribes++
}

func (s *spy) Transform(sig *movement.Signal) {
	if s.fn != nil {
		sig.Movement = s.fn(sig.Movement)
	}
}

func double(v mgl64.Vec2) mgl64.Vec2   { return v.Mul(2) }
func shiftX(v mgl64.Vec2) mgl64.Vec2   { return v.Add(mgl64.Vec2{1, 0}) }
func negate(v mgl64.Vec2) mgl64.Vec2   { return v.Mul(-1) }
func identity(v mgl64.Vec2) mgl64.Vec2 { return v }

type harness struct {
	clock *schedule.MockClock
	exec  *schedule.Executor
	coord *Coordinator
	logs  *observer.ObservedLogs
}

func newHarness(t *testing.T, abilities ...ability.Ability) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	clock := schedule.NewMockClock(epoch)
	exec := schedule.NewExecutor(clock, logger)
	coord := New(Options{Executor: exec, Logger: logger, Abilities: abilities})

	return &harness{clock: clock, exec: exec, coord: coord, logs: logs}
}

// step advances the clock by d and runs one executor pass.
func (h *harness) step(d time.Duration) {
	h.clock.Advance(d)
	h.exec.Tick()
}

func (h *harness) output() mgl64.Vec2 {
	return h.coord.Output().Value()
}

func (h *harness) countErr(err error) int {
	return h.logs.FilterField(zap.Error(err)).Len()
}

func TestCoordinator_ActivateAppliesAndExpires(t *testing.T) {
	rev := ability.NewReverseDirection(ability.Config{Name: "reverse", Duration: 3 * time.Second}, nil)
	h := newHarness(t, rev)

	h.coord.HandleMovement(mgl64.Vec2{1, 0})
	h.step(0)
	assert.Equal(t, mgl64.Vec2{1, 0}, h.output())

	h.coord.Activate(rev)
	h.step(0)
	assert.True(t, h.coord.IsActive(rev))
	assert.Equal(t, mgl64.Vec2{-1, 0}, h.output(), "re-publish makes the effect visible without new input")

	h.step(2999 * time.Millisecond)
	assert.True(t, h.coord.IsActive(rev))

	h.step(time.Millisecond)
	assert.False(t, h.coord.IsActive(rev))
	assert.Equal(t, mgl64.Vec2{1, 0}, h.output())
	assert.Equal(t, 0, h.coord.Channel().Len())
}

func TestCoordinator_RefreshRestartsDurationWithoutResubscribing(t *testing.T) {
	s := newSpy("haste", 3*time.Second, identity)
	s.cfg.RefreshAbility = true
	h := newHarness(t, s)

	h.coord.Activate(s)
	h.step(0)
	h.step(2 * time.Second)

	h.coord.Activate(s)
	h.step(0)

	state, ok := h.coord.Active(s)
	require.True(t, ok)
	assert.Equal(t, epoch.Add(5*time.Second), state.ExpiresAt, "measured from the second activation")
	assert.Equal(t, epoch, state.StartedAt)
	assert.Equal(t, 1, state.Refreshes)

	h.step(2 * time.Second) // t=4s, past the first expiry
	assert.True(t, h.coord.IsActive(s))

	h.step(time.Second) // t=5s
	assert.False(t, h.coord.IsActive(s))

	assert.Equal(t, 1, s.subscribes)
	assert.Equal(t, 1, s.unsubscribes)
	assert.Equal(t, 1, s.activateCalls, "refresh does not re-run the activation hook")
	assert.Equal(t, 1, s.deactivateCalls)
}

func TestCoordinator_ImmediateDoubleRefresh(t *testing.T) {
	s := newSpy("haste", time.Second, identity)
	s.cfg.RefreshAbility = true
	h := newHarness(t, s)

	h.coord.Activate(s)
	h.coord.Activate(s)
	h.step(0)

	assert.Equal(t, 1, s.subscribes)
	assert.Equal(t, 1, h.coord.Channel().Len())

	h.step(time.Second)
	assert.False(t, h.coord.IsActive(s))
	assert.Equal(t, 1, s.deactivateCalls, "the replaced scope never fires")
}

func TestCoordinator_NonRefreshReactivationKeepsExpiry(t *testing.T) {
	s := newSpy("slow", 3*time.Second, identity)
	h := newHarness(t, s)

	h.coord.Activate(s)
	h.step(0)
	h.step(2 * time.Second)

	h.coord.Activate(s)
	h.step(0)

	state, ok := h.coord.Active(s)
	require.True(t, ok)
	assert.Equal(t, epoch.Add(3*time.Second), state.ExpiresAt)
	assert.Equal(t, 0, state.Refreshes)
	assert.Equal(t, 1, h.countErr(ErrAlreadyActive))

	h.step(time.Second)
	assert.False(t, h.coord.IsActive(s))
	assert.Equal(t, 1, s.activateCalls)
}

func TestCoordinator_TransformsComposeInActivationOrder(t *testing.T) {
	a := newSpy("a", time.Minute, double)
	b := newSpy("b", time.Minute, shiftX)
	h := newHarness(t, a, b)

	h.coord.Activate(a)
	h.coord.Activate(b)
	h.coord.HandleMovement(mgl64.Vec2{1, 1})
	h.step(0)

	assert.Equal(t, []string{"a", "b"}, h.coord.ActiveAbilities())
	assert.Equal(t, mgl64.Vec2{3, 2}, h.output(), "b(a(input))")

	// Reversing the activation order reverses the composition.
	h.coord.Deactivate(a)
	h.step(0)
	h.coord.Activate(a)
	h.step(0)

	assert.Equal(t, []string{"b", "a"}, h.coord.ActiveAbilities())
	assert.Equal(t, mgl64.Vec2{4, 2}, h.output(), "a(b(input))")
}

func TestCoordinator_ReverseToggle(t *testing.T) {
	rev := ability.NewReverseDirection(ability.Config{Name: "reverse", Duration: time.Minute}, nil)
	h := newHarness(t, rev)

	h.coord.HandleMovement(mgl64.Vec2{1, 0})
	h.coord.Activate(rev)
	h.step(0)
	assert.Equal(t, mgl64.Vec2{-1, 0}, h.output())

	h.coord.Deactivate(rev)
	h.step(0)
	assert.Equal(t, mgl64.Vec2{1, 0}, h.output())

	h.coord.Activate(rev)
	h.step(0)
	assert.Equal(t, mgl64.Vec2{-1, 0}, h.output())
}

func TestCoordinator_DeactivateInactiveIsNoop(t *testing.T) {
	s := newSpy("idle", time.Second, identity)
	h := newHarness(t, s)

	assert.NotPanics(t, func() {
		h.coord.Deactivate(s)
		h.coord.Deactivate(nil)
		h.step(0)
	})

	assert.Equal(t, 0, s.deactivateCalls)
	assert.Equal(t, 1, h.countErr(ErrNotActive))
	assert.Equal(t, 1, h.countErr(ErrNilAbility))
}

func TestCoordinator_RejectsUnknownAndNilAbilities(t *testing.T) {
	known := newSpy("known", time.Second, identity)
	stranger := newSpy("stranger", time.Second, identity)
	h := newHarness(t, known)

	h.coord.Activate(stranger)
	h.coord.Activate(nil)
	h.step(0)

	assert.False(t, h.coord.IsActive(stranger))
	assert.Empty(t, h.coord.ActiveAbilities())
	assert.Equal(t, 0, stranger.activateCalls)
	assert.Equal(t, 1, h.countErr(ErrUnknownAbility))
	assert.Equal(t, 1, h.countErr(ErrNilAbility))
}

func TestCoordinator_RemoveActiveAbility(t *testing.T) {
	s := newSpy("temp", time.Minute, negate)
	h := newHarness(t, s)

	h.coord.HandleMovement(mgl64.Vec2{0, 1})
	h.coord.Activate(s)
	h.step(0)
	require.True(t, h.coord.IsActive(s))

	h.coord.RemoveAbility(s)
	h.step(0)

	assert.False(t, h.coord.IsActive(s))
	assert.Empty(t, h.coord.AvailableAbilities())
	assert.Equal(t, mgl64.Vec2{0, 1}, h.output())
	assert.Equal(t, 1, s.unsubscribes)

	h.coord.RemoveAbility(s)
	h.coord.Activate(s)
	h.step(0)
	assert.Equal(t, 1, h.countErr(ErrNotRegistered))
	assert.Equal(t, 1, h.countErr(ErrUnknownAbility))

	h.step(time.Hour)
	assert.Equal(t, 1, s.deactivateCalls)
}

func TestCoordinator_AddAbility(t *testing.T) {
	s := newSpy("late", time.Second, identity)
	h := newHarness(t)

	h.coord.AddAbility(s)
	h.coord.AddAbility(s)
	h.coord.AddAbility(nil)
	h.step(0)

	assert.Equal(t, []string{"late"}, h.coord.AvailableAbilities())
	assert.Equal(t, 1, h.countErr(ErrAlreadyRegistered))

	h.coord.Activate(s)
	h.step(0)
	assert.True(t, h.coord.IsActive(s))
}

func TestCoordinator_ContinuousMovementPublishesEveryTick(t *testing.T) {
	drift := newSpy("drift", 2*time.Second, shiftX)
	drift.cfg.RequiresContinuousMovement = true
	plain := newSpy("plain", time.Minute, identity)
	h := newHarness(t, drift, plain)

	h.coord.Activate(plain)
	h.step(0)
	assert.False(t, h.coord.RequiresContinuousMovement())

	before := h.coord.Publishes()
	for i := 0; i < 5; i++ {
		h.step(100 * time.Millisecond)
	}
	assert.Equal(t, before, h.coord.Publishes(), "no synthetic publish without a continuous ability")

	h.coord.Activate(drift)
	h.step(0)
	require.True(t, h.coord.RequiresContinuousMovement())
	assert.Equal(t, mgl64.Vec2{1, 0}, h.output(), "zero input still drifts")

	before = h.coord.Publishes()
	for i := 0; i < 5; i++ {
		h.step(100 * time.Millisecond)
	}
	assert.Equal(t, before+5, h.coord.Publishes())

	h.step(2 * time.Second)
	assert.False(t, h.coord.IsActive(drift))
	assert.False(t, h.coord.RequiresContinuousMovement())
	assert.Equal(t, mgl64.Vec2{0, 0}, h.output(), "stale forced movement is cleared on expiry")

	before = h.coord.Publishes()
	h.step(100 * time.Millisecond)
	h.step(100 * time.Millisecond)
	assert.Equal(t, before, h.coord.Publishes())
}

func TestCoordinator_ExternalDeactivateCancelsExpiry(t *testing.T) {
	s := newSpy("shield", 3*time.Second, identity)
	h := newHarness(t, s)

	h.coord.Activate(s)
	h.step(0)
	h.step(time.Second)

	h.coord.Deactivate(s)
	h.step(0)
	assert.Equal(t, 1, s.deactivateCalls)

	h.step(5 * time.Second)
	assert.Equal(t, 1, s.deactivateCalls, "natural expiry must not fire after cancellation")
	assert.False(t, h.coord.IsActive(s))
}

func TestCoordinator_ZeroDurationExpiresImmediately(t *testing.T) {
	s := newSpy("blink", 0, negate)
	h := newHarness(t, s)

	h.coord.HandleMovement(mgl64.Vec2{1, 0})
	h.coord.Activate(s)
	h.step(0)

	assert.False(t, h.coord.IsActive(s))
	assert.Equal(t, 1, s.subscribes)
	assert.Equal(t, 1, s.unsubscribes)
	assert.Equal(t, mgl64.Vec2{1, 0}, h.output())
}

func TestCoordinator_ZeroInputSkipsRepublish(t *testing.T) {
	s := newSpy("reverse", time.Second, negate)
	h := newHarness(t, s)

	h.coord.Activate(s)
	h.step(0)
	assert.Equal(t, uint64(0), h.coord.Publishes())

	h.step(time.Second)
	assert.Equal(t, uint64(0), h.coord.Publishes())
}

func TestCoordinator_SubscriptionsBalanceOverRandomOperations(t *testing.T) {
	a := newSpy("a", 700*time.Millisecond, negate)
	a.cfg.RefreshAbility = true
	b := newSpy("b", 300*time.Millisecond, double)
	h := newHarness(t, a, b)

	rng := rand.New(rand.NewPCG(42, 42))
	spies := []*spy{a, b}
	for i := 0; i < 500; i++ {
		s := spies[rng.IntN(len(spies))]
		switch rng.IntN(4) {
		case 0:
			h.coord.Activate(s)
		case 1:
			h.coord.Deactivate(s)
		case 2:
			h.coord.HandleMovement(mgl64.Vec2{rng.Float64() - 0.5, rng.Float64() - 0.5})
		}
		h.step(time.Duration(rng.IntN(200)) * time.Millisecond)

		for _, sp := range spies {
			active := h.coord.IsActive(sp)
			assert.Equal(t, active, sp.subscribed, "%s: active iff subscribed", sp.Name())
			if !active {
				assert.Equal(t, sp.subscribes, sp.unsubscribes, "%s leaked a subscription", sp.Name())
			}
		}
	}
}

func TestCoordinator_BindAndClose(t *testing.T) {
	a := newSpy("a", time.Minute, negate)
	b := newSpy("b", time.Minute, identity)
	h := newHarness(t, a, b)

	ev := ability.NewActivationEvent(nil)
	h.coord.Bind(ev)
	h.coord.Bind(nil)
	assert.Equal(t, 1, ev.Len())

	h.coord.HandleMovement(mgl64.Vec2{1, 0})
	ev.Raise(a)
	ev.Raise(b)
	h.step(0)
	assert.Equal(t, []string{"a", "b"}, h.coord.ActiveAbilities())
	assert.Equal(t, mgl64.Vec2{-1, 0}, h.output())

	h.coord.Close()
	h.step(0)

	assert.Equal(t, 0, ev.Len())
	assert.Empty(t, h.coord.ActiveAbilities())
	assert.Equal(t, 1, a.unsubscribes)
	assert.Equal(t, 1, b.unsubscribes)
	assert.Equal(t, mgl64.Vec2{1, 0}, h.output())

	h.coord.Activate(a)
	h.step(0)
	assert.False(t, h.coord.IsActive(a))
	assert.Equal(t, 1, h.countErr(ErrClosed))

	h.step(time.Hour)
	assert.Equal(t, 1, a.deactivateCalls)
}

func TestCoordinator_RandomDirectionDriftsWithoutInput(t *testing.T) {
	clock := schedule.NewMockClock(epoch)
	exec := schedule.NewExecutor(clock, nil)

	random := ability.NewRandomDirection(
		ability.Config{Name: "drunk", Duration: 5 * time.Second, RequiresContinuousMovement: true},
		time.Second, nil,
		ability.WithRand(rand.New(rand.NewPCG(3, 9))),
		ability.WithClock(clock.Now))
	coord := New(Options{Executor: exec, Abilities: []ability.Ability{random}})

	coord.Activate(random)
	exec.Tick()

	allowed := []mgl64.Vec2{movement.Up, movement.Down, movement.Left, movement.Right}
	for i := 0; i < 60; i++ {
		clock.Advance(100 * time.Millisecond)
		exec.Tick()
		if coord.IsActive(random) {
			assert.Contains(t, allowed, coord.Output().Value())
			assert.Equal(t, random.Current(), coord.Output().Value())
		}
	}

	assert.False(t, coord.IsActive(random))
	assert.False(t, random.Subscribed())
	assert.Equal(t, mgl64.Vec2{0, 0}, coord.Output().Value())
}
