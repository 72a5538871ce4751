package app

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/config"
	"concierge-automation/internal/server"
)

// Run is the main entry point for the application.
func Run() error {
	_ = godotenv.Load()

	runtime.GOMAXPROCS(runtime.NumCPU())

	logging.InitGlobalLogger()
	defer logging.MustSync()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Error("configuration validation failed", err)
		return err
	}

	app, err := New(cfg)
	if err != nil {
		logging.Error("failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	srv := server.New(app.Handlers.Router(), cfg.Port, app.Logger)
	srv.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("server forced to shutdown", err)
		return err
	}

	logging.Info("server exited")
	return nil
}
