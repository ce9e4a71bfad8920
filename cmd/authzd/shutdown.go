package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/avauthz/internal/audit"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// runServer serves until SIGINT or SIGTERM, then shuts down.
func runServer(app *application, logger observability.Logger) {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.server.Start(context.Background())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
		}
	}

	shutdown(app, logger)
}

// shutdown stops components in dependency order: stop taking traffic, then
// flush audit, then release stores and exporters.
func shutdown(app *application, logger observability.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	app.health.Drain()

	if app.watcher != nil {
		_ = app.watcher.Stop()
	}

	if err := app.server.Stop(ctx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if app.limiter != nil {
		app.limiter.Stop()
	}

	if err := app.pipeline.Close(ctx); err != nil && !errors.Is(err, audit.ErrClosed) {
		logger.Error("failed to flush audit events", observability.Error(err))
	}
	if err := closeSink(app.sink); err != nil {
		logger.Error("failed to close audit sink", observability.Error(err))
	}

	if err := app.cache.Close(); err != nil {
		logger.Error("failed to close cache", observability.Error(err))
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			logger.Error("failed to close database", observability.Error(err))
		}
	}

	if err := app.secrets.Close(); err != nil {
		logger.Error("failed to close secrets provider", observability.Error(err))
	}

	if err := app.tracer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("avauthz stopped")
}
