// Package runtime holds the process-wide backend environment.
//
// A Registry has exactly one slot. The slot holds an Environment: the owning
// engine.Handle, the admission gate guarding it and the export sessions opened
// against it. Callers only ever see the read-only engine facade; tearing the
// backend down goes through Registry.Destroy.
package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/pkg/engine"
	"github.com/marmos91/resolvd/pkg/export"
	"github.com/marmos91/resolvd/pkg/runtime/admission"
)

// Environment is one initialized backend with its admission gate and export
// sessions.
type Environment struct {
	handle    engine.Handle
	facade    engine.Engine
	gate      *admission.Gate
	exports   *export.Manager
	createdAt time.Time

	destroyOnce sync.Once
	destroyErr  error
}

// Status is a point-in-time view of an environment.
type Status struct {
	State        string             `json:"state"`
	InFlight     int                `json:"in_flight"`
	OpenSessions int                `json:"open_sessions"`
	CreatedAt    time.Time          `json:"created_at"`
	Engine       engine.VersionInfo `json:"engine"`
}

// Engine returns the read-only engine facade.
func (e *Environment) Engine() engine.Engine { return e.facade }

// Gate returns the admission gate.
func (e *Environment) Gate() *admission.Gate { return e.gate }

// Exports returns the export session manager.
func (e *Environment) Exports() *export.Manager { return e.exports }

// Status reports the environment state.
func (e *Environment) Status() Status {
	return Status{
		State:        e.gate.State().String(),
		InFlight:     e.gate.InFlight(),
		OpenSessions: e.exports.Len(),
		CreatedAt:    e.createdAt,
		Engine:       e.facade.Version(),
	}
}

// Execute runs task against the engine under admission.
func (e *Environment) Execute(ctx context.Context, task func(ctx context.Context, eng engine.Engine) error) error {
	return e.gate.Execute(ctx, func(ctx context.Context) error {
		return task(ctx, e.facade)
	})
}

// Call is Execute for tasks that produce a value.
func Call[T any](ctx context.Context, env *Environment, task func(ctx context.Context, eng engine.Engine) (T, error)) (T, error) {
	return admission.Run(ctx, env.gate, func(ctx context.Context) (T, error) {
		return task(ctx, env.facade)
	})
}

// destroy drains the gate, closes every export session and then the engine.
// Only the first call does any work.
func (e *Environment) destroy() error {
	e.destroyOnce.Do(func() {
		start := time.Now()
		logger.Info("Destroying environment", logger.KeyInFlight, e.gate.InFlight())

		e.gate.BeginDestroy()
		closed := e.exports.CloseAll()

		var errs []error
		if err := e.handle.Close(); err != nil {
			errs = append(errs, err)
		}
		e.destroyErr = errors.Join(errs...)

		logger.Info("Environment destroyed",
			logger.KeyClosed, closed,
			logger.KeyDurationMs, logger.Duration(start))
	})
	return e.destroyErr
}
