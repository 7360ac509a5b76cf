package bootstrap

import (
	"context"
	"fmt"
	"time"

	"callgist/internal/broadcast"
	callsHandler "callgist/internal/calls/handler"
	callsProcessor "callgist/internal/calls/processor"
	"callgist/internal/clients/crm"
	openaiClient "callgist/internal/clients/openai"
	"callgist/internal/config"
	"callgist/internal/observability"
	sessionsHandler "callgist/internal/sessions/handler"
	sessionsProcessor "callgist/internal/sessions/processor"
	sessionsWorker "callgist/internal/sessions/worker"
	"callgist/internal/store"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store       store.Store
	Logger      *observability.Logger
	Broadcaster *broadcast.Broadcaster

	// Processors
	CallProcessor  *callsProcessor.CallProcessor
	SessionManager *sessionsProcessor.SessionManager

	// Handlers
	CallsHandler    callsHandler.Handler
	SessionsHandler sessionsHandler.Handler

	// Background workers
	SessionReaper *sessionsWorker.SessionReaper
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize database store
	var err error
	deps.Store, err = store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize event broadcaster
	deps.Broadcaster = broadcast.New(logger)

	// Initialize external clients
	aiClient := openaiClient.NewClient(cfg.Services.OpenAIAPIKey, logger)
	crmClient := crm.NewClient(cfg.Services.CRMProvider, cfg.Services.CRMWebhookURL, logger)

	// Initialize call pipeline
	deps.CallProcessor = callsProcessor.NewCallProcessor(
		&deps.Store,
		aiClient,
		aiClient,
		deps.Broadcaster,
		crmClient,
		callsProcessor.NewSanitizer(nil),
		cfg.Processing.TranscriptionTimeout,
		cfg.Processing.AnalysisTimeout,
		logger,
	)

	// Initialize session manager; terminal calls flip their session to ended
	deps.SessionManager = sessionsProcessor.NewSessionManager(deps.CallProcessor, &deps.Store, logger)
	deps.CallProcessor.OnTerminal(deps.SessionManager.HandleTerminal)

	// Initialize handlers
	deps.CallsHandler = callsHandler.New(
		deps.CallProcessor,
		&deps.Store,
		deps.Broadcaster,
		cfg.Processing.UploadDir,
		logger,
	)
	deps.SessionsHandler = sessionsHandler.New(deps.SessionManager, logger)

	// Idle live sessions are force-ended in the background
	deps.SessionReaper = sessionsWorker.New(
		deps.SessionManager,
		logger,
		time.Minute,
		cfg.Processing.SessionIdleTimeout,
	)

	return deps, nil
}

// Cleanup releases resources held by the dependencies
func (d *Dependencies) Cleanup() {
	if db := d.Store.DB(); db != nil {
		db.Close()
	}
}
