package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/aretw0/knot/internal/config"
	"github.com/aretw0/knot/internal/presentation/tui"
)

// ShutdownTimeout bounds untying and flushing on exit.
const ShutdownTimeout = 5 * time.Second

// RunOptions contains all the configuration for the Run command.
type RunOptions struct {
	Config  config.Config
	Debug   bool
	Quiet   bool // no banner or system messages
	Version string
	Out     io.Writer

	// Debounce overrides DefaultDebounce for --watch.
	Debounce time.Duration
	// OnReady is called once the first bindings load is tied.
	OnReady func(*Runtime)
	// OnReload is called after each successful reload in watch mode.
	OnReload func(*Session)
}

func (o RunOptions) out() io.Writer {
	if o.Quiet {
		return io.Discard
	}
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

// Execute ties the bindings file between Redis entities and keeps the knots
// alive until ctx is cancelled or a signal arrives, serving the inspector
// and reloading on change when configured to.
func Execute(ctx context.Context, opts RunOptions) error {
	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()

	logger := opts.Config.Logger(opts.Debug)
	out := opts.out()
	if !opts.Quiet {
		tui.PrintBanner(out)
	}

	rt, err := createRuntime(sigCtx, opts.Config, logger, opts.Debug)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			logger.Warn("Shutdown was not clean", "err", err)
		}
	}()

	stop, err := serveInspector(rt, opts, logger)
	if err != nil {
		return err
	}
	defer stop()

	if s, err := rt.Open(sigCtx, opts.Config.Bindings); s == nil {
		if !opts.Config.Watch {
			return err
		}
		logger.Error("Bindings failed to load, waiting for changes", "err", err)
	}
	if s := rt.Session(); s != nil {
		printSystemMessage(out, "%d knot(s) tied from '%s'.", len(s.Knots), s.Path)
	}
	if opts.OnReady != nil {
		opts.OnReady(rt)
	}

	if opts.Config.Watch {
		err = rt.watchBindings(sigCtx, opts)
	} else {
		<-sigCtx.Done()
	}

	if sig := sigCtx.Signal(); sig != nil {
		printSystemMessage(out, "Interrupted (%s), untying.", sig)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
