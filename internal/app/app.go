// Package app wires the engines, collaborators and HTTP surface into
// one process with an explicit lifecycle. Nothing here holds ambient
// global state beyond the logger.
package app

import (
	"concierge-automation/internal/automation"
	"concierge-automation/internal/common/cache"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/config"
	"concierge-automation/internal/handlers"
	"concierge-automation/internal/monitor"
	"concierge-automation/internal/scheduler"
	"concierge-automation/internal/storage"
	"concierge-automation/internal/workflow"
)

// App holds all the application dependencies.
type App struct {
	Config    *config.Config
	Storage   storage.Storage
	Dedup     cache.DedupStore
	Engine    *automation.Engine
	Matcher   *automation.Matcher
	Scheduler *scheduler.Scheduler
	Workflows *workflow.Engine
	Monitors  *monitor.Manager
	Cron      *monitor.CronService
	Handlers  *handlers.Handlers
	Logger    logging.Logger
}

// New builds the application in dependency order.
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
	}

	if err := app.initializeStorage(); err != nil {
		return nil, err
	}
	app.initializeDedup()
	app.initializeEngines()

	app.Handlers = handlers.New(app.Storage, app.Engine, app.Matcher,
		app.Scheduler, app.Workflows, app.Monitors, app.Logger)

	app.Cron.Start()
	return app, nil
}

// Cleanup releases all resources. Safe to call on a partially built app.
func (app *App) Cleanup() {
	if app.Cron != nil {
		app.Cron.Stop()
	}
	if app.Monitors != nil {
		app.Monitors.StopAll()
	}
	if app.Dedup != nil {
		app.Dedup.Close()
	}
	if app.Storage != nil {
		app.Storage.Close()
	}
}
