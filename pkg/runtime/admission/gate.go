// Package admission guards every backend operation against the lifecycle of
// the environment that owns the backend.
//
// A Gate moves through three states: Active, Destroying and Destroyed.
// Operations are admitted only while Active. BeginDestroy stops admission and
// waits for every admitted operation to finish before the gate becomes
// Destroyed. Destroyed is terminal.
//
// Two locks cooperate:
//
//   - rw, an outer reader/writer lock. Admission takes it shared for the
//     check-and-increment step only; BeginDestroy holds it exclusively from the
//     start of destruction until the gate is terminal. An admitter that finds
//     rw held exclusively fails immediately instead of queueing behind the
//     drain.
//   - mu, an inner monitor guarding state and inFlight, with cond for drain
//     notifications. Checking the state and incrementing the counter happen
//     atomically under mu, so a last-moment admission cannot slip past the
//     destroy decision.
//
// Tasks run outside both locks.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/resolvd/internal/logger"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
)

// DefaultPollInterval bounds each wait of the drain loop.
const DefaultPollInterval = 5 * time.Second

// ErrNotActive is wrapped by every admission rejection.
var ErrNotActive = errors.New("environment not active")

// State is the lifecycle state of a Gate.
type State int32

const (
	StateActive State = iota
	StateDestroying
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDestroying:
		return "destroying"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Metrics receives admission events. A nil Metrics disables collection.
type Metrics interface {
	RecordAdmission(admitted bool)
	SetInFlight(n int)
	SetState(s State)
}

// Task is a unit of work run under admission.
type Task func(ctx context.Context) error

// Gate is the admission controller for one backend environment.
type Gate struct {
	rw sync.RWMutex

	mu       sync.Mutex
	cond     *sync.Cond
	state    State
	inFlight int

	pollInterval time.Duration
	metrics      Metrics
}

// Option configures a Gate.
type Option func(*Gate)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.pollInterval = d
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// NewGate returns an Active gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		state:        StateActive,
		pollInterval: DefaultPollInterval,
	}
	g.cond = sync.NewCond(&g.mu)
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics != nil {
		g.metrics.SetState(StateActive)
	}
	return g
}

// State returns the current lifecycle state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// InFlight returns the number of admitted, unfinished operations.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Execute runs task if the gate is Active and fails fast otherwise, without
// calling task. Errors returned by task that carry an engine error pass through
// unchanged; any other error, and any panic, is wrapped into a generic engine
// error.
func (g *Gate) Execute(ctx context.Context, task Task) (err error) {
	if !g.admit(ctx) {
		return rejected()
	}

	defer func() {
		if r := recover(); r != nil {
			err = engerrors.Wrap(engerrors.KindUnhandled, fmt.Errorf("%v", r), "operation panicked")
		}
		g.release()
	}()

	return wrapTaskError(task(ctx))
}

// Run is Execute for tasks that produce a value.
func Run[T any](ctx context.Context, g *Gate, task func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Execute(ctx, func(ctx context.Context) error {
		v, err := task(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// admit performs the check-and-increment step.
func (g *Gate) admit(ctx context.Context) bool {
	if !g.rw.TryRLock() {
		// BeginDestroy holds or is acquiring the exclusive lock.
		g.recordAdmission(false)
		logger.DebugCtx(ctx, "Admission rejected", logger.KeyState, StateDestroying.String())
		return false
	}
	defer g.rw.RUnlock()

	g.mu.Lock()
	if g.state != StateActive {
		state := g.state
		g.mu.Unlock()
		g.recordAdmission(false)
		logger.DebugCtx(ctx, "Admission rejected", logger.KeyState, state.String())
		return false
	}
	g.inFlight++
	n := g.inFlight
	g.mu.Unlock()

	g.recordAdmission(true)
	g.setInFlight(n)
	return true
}

func (g *Gate) release() {
	g.mu.Lock()
	g.inFlight--
	n := g.inFlight
	g.cond.Broadcast()
	g.mu.Unlock()

	g.setInFlight(n)
}

// BeginDestroy stops admission and blocks until every admitted operation has
// finished. It never cancels running operations. Calling it again, or
// concurrently, returns once the gate is Destroyed.
func (g *Gate) BeginDestroy() {
	g.rw.Lock()
	defer g.rw.Unlock()

	g.mu.Lock()
	if g.state == StateDestroyed {
		g.mu.Unlock()
		return
	}
	g.state = StateDestroying
	g.mu.Unlock()
	g.setState(StateDestroying)

	start := time.Now()
	logger.Info("Draining admitted operations", logger.KeyInFlight, g.InFlight())

	g.mu.Lock()
	for g.inFlight > 0 {
		g.waitLocked()
		if g.inFlight > 0 {
			logger.Info("Still draining", logger.KeyInFlight, g.inFlight,
				logger.KeyDurationMs, logger.Duration(start))
		}
	}
	g.state = StateDestroyed
	g.cond.Broadcast()
	g.mu.Unlock()
	g.setState(StateDestroyed)

	logger.Info("Environment drained", logger.KeyDurationMs, logger.Duration(start))
}

// waitLocked waits on cond for at most one poll interval. mu must be held; it
// is released while waiting.
func (g *Gate) waitLocked() {
	t := time.AfterFunc(g.pollInterval, func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	g.cond.Wait()
	t.Stop()
}

func (g *Gate) recordAdmission(admitted bool) {
	if g.metrics != nil {
		g.metrics.RecordAdmission(admitted)
	}
}

func (g *Gate) setInFlight(n int) {
	if g.metrics != nil {
		g.metrics.SetInFlight(n)
	}
}

func (g *Gate) setState(s State) {
	if g.metrics != nil {
		g.metrics.SetState(s)
	}
}

func rejected() error {
	return engerrors.NewNotInitialized(ErrNotActive, "environment already destroyed")
}

// wrapTaskError leaves engine errors untouched and wraps anything else.
func wrapTaskError(err error) error {
	if err == nil || engerrors.IsDomain(err) {
		return err
	}
	return engerrors.NewGeneric(err)
}
