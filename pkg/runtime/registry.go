package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/pkg/engine"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
	"github.com/marmos91/resolvd/pkg/export"
	"github.com/marmos91/resolvd/pkg/runtime/admission"
)

// Opener creates the backend for a new environment.
type Opener func(ctx context.Context) (engine.Handle, error)

// Option configures a Registry.
type Option func(*Registry)

// WithPollInterval sets the drain poll interval of new environments.
func WithPollInterval(d time.Duration) Option {
	return func(r *Registry) { r.pollInterval = d }
}

// WithGateMetrics attaches admission metrics to new environments.
func WithGateMetrics(m admission.Metrics) Option {
	return func(r *Registry) { r.gateMetrics = m }
}

// WithExportMetrics attaches export metrics to new environments.
func WithExportMetrics(m export.Metrics) Option {
	return func(r *Registry) { r.exportMetrics = m }
}

// Registry owns the single environment slot of the process.
type Registry struct {
	open          Opener
	pollInterval  time.Duration
	gateMetrics   admission.Metrics
	exportMetrics export.Metrics

	mu  sync.Mutex
	env *Environment
}

// NewRegistry creates an empty registry that builds backends with open.
func NewRegistry(open Opener, opts ...Option) *Registry {
	r := &Registry{open: open, pollInterval: admission.DefaultPollInterval}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init creates the environment. It fails with a Configuration error while an
// environment is active or being destroyed; a destroyed environment is
// replaced by a fresh one once its teardown has finished.
func (r *Registry) Init(ctx context.Context) (*Environment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev := r.env; prev != nil {
		if state := prev.gate.State(); state != admission.StateDestroyed {
			return nil, engerrors.NewConfiguration("environment already initialized (state %s)", state)
		}
		// The gate reports DESTROYED before the engine is closed; the new
		// handle must not open until the old one has released its files.
		if err := prev.destroy(); err != nil {
			logger.Warn("Previous environment closed with errors", logger.KeyError, err)
		}
	}

	handle, err := r.open(ctx)
	if err != nil {
		return nil, err
	}

	gate := admission.NewGate(
		admission.WithPollInterval(r.pollInterval),
		admission.WithMetrics(r.gateMetrics),
	)
	facade := engine.ReadOnly(handle)
	env := &Environment{
		handle:    handle,
		facade:    facade,
		gate:      gate,
		exports:   export.NewManager(gate, facade, r.exportMetrics),
		createdAt: time.Now(),
	}
	r.env = env

	logger.Info("Environment initialized", logger.KeyState, gate.State().String())
	return env, nil
}

// Current returns the environment in the slot, including a destroyed one, or a
// NotInitialized error when Init never succeeded.
func (r *Registry) Current() (*Environment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.env == nil {
		return nil, engerrors.NewNotInitialized(admission.ErrNotActive, "environment not initialized")
	}
	return r.env, nil
}

// Destroy tears down the current environment and waits for admitted calls to
// finish. Calling it again, or with no environment, is a no-op.
func (r *Registry) Destroy() error {
	r.mu.Lock()
	env := r.env
	r.mu.Unlock()

	if env == nil {
		return nil
	}
	return env.destroy()
}
