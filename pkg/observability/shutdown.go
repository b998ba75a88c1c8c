package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager runs registered cleanup functions in reverse registration order,
// so resources opened last (servers) stop before the ones they depend on (database).
type ShutdownManager struct {
	logger  *Logger
	timeout time.Duration

	mu    sync.Mutex
	funcs []namedShutdown
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{logger: logger, timeout: timeout}
}

// Register adds a named cleanup function
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, namedShutdown{name: name, fn: fn})
}

// Shutdown runs every registered function within the configured timeout and
// returns the joined errors.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	sm.mu.Lock()
	funcs := make([]namedShutdown, len(sm.funcs))
	copy(funcs, sm.funcs)
	sm.mu.Unlock()

	var errs []error
	for i := len(funcs) - 1; i >= 0; i-- {
		f := funcs[i]
		if err := ctx.Err(); err != nil {
			sm.logger.Warn("Shutdown timeout reached, skipping remaining functions")
			errs = append(errs, fmt.Errorf("shutdown timeout reached before %s: %w", f.name, err))
			break
		}
		sm.logger.Infof("Shutting down %s", f.name)
		if err := f.fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("Shutdown of %s failed", f.name)
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
		}
	}

	if len(errs) == 0 {
		sm.logger.Info("Graceful shutdown complete")
	}
	return errors.Join(errs...)
}
