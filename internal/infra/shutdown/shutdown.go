// Package shutdown provides graceful shutdown handling for
// scriptgate-server.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Handler runs registered hooks when the process receives SIGINT or
// SIGTERM, or when Trigger is called.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	hooks []namedHook

	trigger chan struct{}
	once    sync.Once
	done    chan struct{}
}

type namedHook struct {
	name string
	fn   func(context.Context) error
}

// New creates a shutdown handler. The timeout bounds the total time
// hooks get to finish.
func New(timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		timeout: timeout,
		logger:  logger,
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a named hook. Hooks run in reverse
// registration order, so dependents register after their
// dependencies.
func (h *Handler) OnShutdown(name string, hook func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, namedHook{name: name, fn: hook})
}

// Trigger initiates shutdown without a signal.
func (h *Handler) Trigger() {
	h.once.Do(func() { close(h.trigger) })
}

// Wait blocks until a shutdown signal or Trigger, then executes all
// hooks. Returns the last hook error.
func (h *Handler) Wait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		h.logger.Info("shutdown signal received", "signal", sig.String())
	case <-h.trigger:
		h.logger.Info("shutdown triggered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]namedHook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	var lastErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i].fn(ctx); err != nil {
			h.logger.Error("shutdown hook failed", "hook", hooks[i].name, "error", err)
			lastErr = err
		} else {
			h.logger.Debug("shutdown hook completed", "hook", hooks[i].name)
		}
	}

	close(h.done)
	return lastErr
}

// Done closes when shutdown has completed.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
