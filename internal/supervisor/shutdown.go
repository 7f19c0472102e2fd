package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"metronome/pkg/logx"
)

// DefaultShutdownTimeout bounds how long one component may take to shut down.
const DefaultShutdownTimeout = 10 * time.Second

// ShutdownHandler provides an abstraction for process shutdown operations.
// This allows for graceful shutdown and alternative behaviors (e.g., testing).
type ShutdownHandler interface {
	// Shutdown initiates system shutdown with the given exit code and reason.
	Shutdown(exitCode int, reason string)
}

// DefaultShutdownHandler implements immediate process termination.
type DefaultShutdownHandler struct {
	logger *logx.Logger
}

// NewDefaultShutdownHandler creates a shutdown handler that calls os.Exit.
func NewDefaultShutdownHandler(logger *logx.Logger) *DefaultShutdownHandler {
	return &DefaultShutdownHandler{logger: logger}
}

// Shutdown performs immediate process termination.
func (h *DefaultShutdownHandler) Shutdown(exitCode int, reason string) {
	h.logger.Error("FATAL SHUTDOWN: %s (exit code: %d)", reason, exitCode)
	os.Exit(exitCode)
}

// GracefulShutdownHandler signals shutdown through a channel so the main
// loop can unwind components in order, falling back to os.Exit when nobody
// is listening.
type GracefulShutdownHandler struct {
	logger          *logx.Logger
	shutdownChannel chan int
}

// NewGracefulShutdownHandler creates a shutdown handler that signals via channel.
func NewGracefulShutdownHandler(logger *logx.Logger, shutdownChannel chan int) *GracefulShutdownHandler {
	return &GracefulShutdownHandler{
		logger:          logger,
		shutdownChannel: shutdownChannel,
	}
}

// Shutdown signals the shutdown channel, or exits when the channel is full.
func (h *GracefulShutdownHandler) Shutdown(exitCode int, reason string) {
	h.logger.Error("GRACEFUL SHUTDOWN: %s (exit code: %d)", reason, exitCode)

	if h.shutdownChannel != nil {
		select {
		case h.shutdownChannel <- exitCode:
			h.logger.Info("Shutdown signal sent via channel")
			return
		default:
			h.logger.Warn("Shutdown channel full, falling back to os.Exit")
		}
	}
	os.Exit(exitCode)
}

// Component defines the interface for things that need graceful shutdown,
// such as the journal writer, the run database or the metrics server.
type Component interface {
	Shutdown(ctx context.Context) error
	Name() string
}

// ComponentFunc adapts a name and a function to the Component interface.
type ComponentFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewComponentFunc wraps a shutdown function as a Component.
func NewComponentFunc(name string, fn func(ctx context.Context) error) *ComponentFunc {
	return &ComponentFunc{name: name, fn: fn}
}

// Shutdown runs the wrapped function.
func (c *ComponentFunc) Shutdown(ctx context.Context) error {
	return c.fn(ctx)
}

// Name returns the component name.
func (c *ComponentFunc) Name() string {
	return c.name
}

// ShutdownManager handles graceful shutdown of process components.
// Components are shut down in reverse registration order (LIFO), each under
// its own timeout.
type ShutdownManager struct {
	mu          sync.RWMutex
	components  []Component
	timeouts    map[string]time.Duration
	shutdownCtx context.Context
	shutdownFn  context.CancelFunc
	done        chan struct{}
	once        sync.Once
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager() *ShutdownManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownManager{
		components:  make([]Component, 0),
		timeouts:    make(map[string]time.Duration),
		shutdownCtx: ctx,
		shutdownFn:  cancel,
		done:        make(chan struct{}),
	}
}

// Register adds a component for graceful shutdown.
func (sm *ShutdownManager) Register(component Component, timeout time.Duration) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.components = append(sm.components, component)
	sm.timeouts[component.Name()] = timeout
}

// Shutdown performs graceful shutdown of all registered components.
// Safe to call more than once; later calls wait for the first to finish.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	sm.once.Do(func() {
		defer close(sm.done)

		// Signal all components that shutdown has begun
		sm.shutdownFn()

		sm.mu.RLock()
		components := make([]Component, len(sm.components))
		copy(components, sm.components)
		timeouts := make(map[string]time.Duration)
		for k, v := range sm.timeouts {
			timeouts[k] = v
		}
		sm.mu.RUnlock()

		// Shutdown components in reverse order (LIFO)
		var errs []error
		for i := len(components) - 1; i >= 0; i-- {
			component := components[i]
			timeout := timeouts[component.Name()]
			if timeout == 0 {
				timeout = DefaultShutdownTimeout
			}

			componentCtx, cancel := context.WithTimeout(ctx, timeout)

			if err := component.Shutdown(componentCtx); err != nil {
				errs = append(errs, fmt.Errorf("failed to shutdown %s: %w", component.Name(), err))
			}

			cancel()
		}

		shutdownErr = errors.Join(errs...)
	})

	// Wait for shutdown completion
	select {
	case <-sm.done:
		return shutdownErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShuttingDown returns true if shutdown has been initiated.
func (sm *ShutdownManager) IsShuttingDown() bool {
	select {
	case <-sm.shutdownCtx.Done():
		return true
	default:
		return false
	}
}

// Wait blocks until shutdown is complete.
func (sm *ShutdownManager) Wait() {
	<-sm.done
}

// ShutdownContext returns a context that is cancelled when shutdown begins.
func (sm *ShutdownManager) ShutdownContext() context.Context {
	return sm.shutdownCtx
}
