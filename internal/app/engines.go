package app

import (
	"concierge-automation/internal/automation"
	"concierge-automation/internal/calendar"
	"concierge-automation/internal/extract"
	"concierge-automation/internal/monitor"
	"concierge-automation/internal/notify"
	"concierge-automation/internal/scheduler"
	"concierge-automation/internal/workflow"
)

// initializeEngines builds the collaborators, then the engines on top
// of them.
func (app *App) initializeEngines() {
	cfg := app.Config

	provider := app.calendarProvider()
	sender := app.notificationSender()
	extractor := app.extractor()

	app.Scheduler = scheduler.New(provider, scheduler.Policy{
		WorkDayStart:  cfg.WorkDayStart,
		WorkDayEnd:    cfg.WorkDayEnd,
		Granularity:   cfg.SlotGranularity,
		LookaheadDays: cfg.LookaheadDays,
	}, app.Logger)

	app.Engine = automation.NewEngine(app.Storage, app.Logger,
		automation.NewNotifyExecutor(sender),
		automation.NewCreateEventExecutor(provider),
		automation.NewSmartScheduleExecutor(app.Scheduler),
		automation.NewWebhookExecutor(),
	)
	app.Matcher = automation.NewMatcher(app.Storage, app.Engine, app.Logger)

	tokens := workflow.NewTokenIssuer(cfg.ApprovalSecret, cfg.ApprovalTTL)
	app.Workflows = workflow.NewEngine(app.Storage, tokens, cfg.StepTimeout, app.Logger,
		workflow.NewExtractStep(extractor),
		workflow.NewScheduleStep(app.Scheduler),
		workflow.NewCreateEventStep(provider),
		workflow.NewNotifyStep(sender),
	)

	app.Monitors = monitor.NewManager(app.Storage, app.Matcher, app.Workflows,
		app.Dedup, cfg.MonitorPollInterval, app.Logger)
	app.Cron = monitor.NewCronService(app.Engine, app.Logger)
	app.Engine.SetScheduler(app.Cron)
	app.restoreSchedules()
}

// restoreSchedules rebuilds cron entries for rules persisted before this
// process started.
func (app *App) restoreSchedules() {
	rules, err := app.Storage.GetAllRules()
	if err != nil {
		app.Logger.Error("failed to load rules for schedule restore", err)
		return
	}
	app.Cron.Restore(rules)
}

func (app *App) calendarProvider() calendar.Provider {
	if app.Config.CalDAVURL != "" {
		return calendar.NewCalDAVProvider(app.Config.CalDAVURL,
			app.Config.CalDAVUsername, app.Config.CalDAVPassword)
	}
	return calendar.NewMemoryProvider()
}

func (app *App) notificationSender() notify.Sender {
	if app.Config.SMTPHost != "" {
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     app.Config.SMTPHost,
			Port:     app.Config.SMTPPort,
			Username: app.Config.SMTPUsername,
			Password: app.Config.SMTPPassword,
			From:     app.Config.SMTPFrom,
		}, app.Logger)
	}
	return notify.NewLogSender(app.Logger)
}

func (app *App) extractor() extract.Extractor {
	if app.Config.Extractor == "openai" {
		return extract.NewOpenAIExtractor(app.Config.OpenAIAPIKey, app.Config.OpenAIModel)
	}
	return extract.NewHeuristicExtractor()
}
