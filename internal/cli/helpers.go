package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/dsl"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
				// Context cancelled elsewhere
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTie: func(ctx context.Context, e *domain.KnotEvent) {
			logger.Debug("Knot tied", "knot_id", e.KnotID, "clause", dsl.Format(e.Spec))
		},
		OnUntie: func(ctx context.Context, e *domain.KnotEvent) {
			logger.Debug("Knot untied", "knot_id", e.KnotID)
		},
		OnChange: func(ctx context.Context, e *domain.ChangeEvent) {
			logger.Debug("Value propagated", "knot_id", e.KnotID, "direction", e.Direction, "value", e.Value)
		},
		OnError: func(ctx context.Context, e *domain.ErrorEvent) {
			logger.Debug("Knot error", "knot_id", e.KnotID, "fatal", e.Fatal, "err", e.Err)
		},
	}
}
