// Package lifecycle supervises the bot's long-lived sidecars, currently the
// banlist refresher and the liveness endpoint. Update handlers are not
// components; they live and die with the polling loop.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

const defaultStopTimeout = 5 * time.Second

type Runtime struct {
	components  []Component
	stopTimeout time.Duration
}

func NewRuntime(components ...Component) *Runtime {
	return &Runtime{
		components:  components,
		stopTimeout: defaultStopTimeout,
	}
}

func (r *Runtime) Register(component Component) {
	if component == nil {
		return
	}
	r.components = append(r.components, component)
}

// Start brings components up in registration order. On failure the ones
// already running are stopped again, so a half-started process never serves.
func (r *Runtime) Start(ctx context.Context) error {
	for i, component := range r.components {
		if component == nil {
			continue
		}
		if err := component.Start(ctx); err != nil {
			_ = stopInReverse(ctx, r.components[:i])
			return fmt.Errorf("start component %d: %w", i, err)
		}
	}
	return nil
}

// Shutdown stops every component in reverse start order under the runtime's
// stop timeout. A stuck banlist refresh must not keep the health listener
// from closing, so errors are collected rather than short-circuited.
func (r *Runtime) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.stopTimeout)
	defer cancel()
	return r.Stop(ctx)
}

func (r *Runtime) Stop(ctx context.Context) error {
	return stopInReverse(ctx, r.components)
}

func stopInReverse(ctx context.Context, components []Component) error {
	var stopErr error
	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		if component == nil {
			continue
		}
		if err := component.Stop(ctx); err != nil {
			stopErr = errors.Join(stopErr, fmt.Errorf("stop component %d: %w", i, err))
		}
	}
	return stopErr
}
