package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/eshaffer321/receipts-reconciler/internal/api"
)

// RunServe runs the API server and keeps the matcher index current until ctx
// is cancelled.
func RunServe(ctx context.Context, app *App, flags *ServeFlags) error {
	apiCfg := api.Config{
		Port:           app.Config.API.Port,
		AllowedOrigins: app.Config.API.AllowedOrigins,
	}
	if flags.Port > 0 {
		apiCfg.Port = flags.Port
	}
	logger := app.Logger.With("system", "api")

	server := api.NewServer(apiCfg, app.Receipts, app.Reconcile, app.Statement, logger)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		if err := app.Reconcile.Run(runCtx, app.Notifier); err != nil {
			logger.Error("index watcher stopped", slog.Any("error", err))
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-runCtx.Done()
		logger.Info("received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
	}()

	// Start blocks until shutdown.
	if err := server.Start(); err != nil {
		stop()
		<-done
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}
