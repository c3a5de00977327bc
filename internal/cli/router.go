package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	knothttp "github.com/aretw0/knot/internal/adapters/http"
)

// serveInspector starts the inspection API on opts.Config.Inspect.Addr.
// It returns a stop function that shuts the server down; an empty address
// disables the server.
func serveInspector(rt *Runtime, opts RunOptions, logger *slog.Logger) (func(), error) {
	addr := opts.Config.Inspect.Addr
	if addr == "" {
		return func() {}, nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	// Streaming requests end with the server rather than holding shutdown open.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler: knothttp.NewHandler(rt.Recorder,
			knothttp.WithLive(rt),
			knothttp.WithGatherer(rt.Metrics),
			knothttp.WithVersion(version),
		),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Inspector stopped", "err", err)
		}
	}()
	logger.Info("Inspector listening", "addr", ln.Addr().String())
	rt.inspectAddr = ln.Addr().String()

	return func() {
		cancelRequests()
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
