package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the drain of in-flight requests and running
// maintenance jobs once the serve context is cancelled.
const shutdownTimeout = 30 * time.Second

// Run serves until ctx is cancelled or the listener fails. The maintenance
// scheduler starts alongside the server and every job fires once
// immediately, so a process that was down over a schedule boundary catches
// up without waiting for the next tick. Shutdown drains the server, the
// scheduler and the startup pass in parallel.
func (r *Runtime) Run(ctx context.Context) error {
	r.sched.Start()

	startupDone := make(chan struct{})
	go func() {
		defer close(startupDone)
		if err := r.sched.RunAll(ctx); err != nil {
			slog.Warn("Startup maintenance pass failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.server.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		if err := r.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.sched.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("scheduler stop: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-startupDone:
			return nil
		case <-shutdownCtx.Done():
			return fmt.Errorf("startup maintenance pass still running: %w", shutdownCtx.Err())
		}
	})
	if err := g.Wait(); err != nil {
		if serveErr != nil {
			return serveErr
		}
		return err
	}
	return serveErr
}
