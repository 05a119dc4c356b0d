// Package app wires every component named in the component design into two
// runnable shapes: a read/write HTTP server (cmd/ingest-server) and a worker
// process that drains the job queue (cmd/ingest-worker). Both share the same
// App — a worker process simply never calls Server().
package app

import (
	"context"
	"fmt"

	"github.com/lumenfeed/ingest/internal/clients/crawler"
	"github.com/lumenfeed/ingest/internal/clients/llm"
	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
	"github.com/lumenfeed/ingest/internal/server"
	"github.com/lumenfeed/ingest/internal/services/auth"
	"github.com/lumenfeed/ingest/internal/services/deletion"
	"github.com/lumenfeed/ingest/internal/services/intake"
	"github.com/lumenfeed/ingest/internal/services/jobevents"
	"github.com/lumenfeed/ingest/internal/services/pipeline"
	"github.com/lumenfeed/ingest/internal/services/qa"
	"github.com/lumenfeed/ingest/internal/services/reconcile"
	"github.com/lumenfeed/ingest/internal/services/search"
	"github.com/lumenfeed/ingest/internal/services/worker"
	"github.com/lumenfeed/ingest/internal/storage"
)

// App holds every long-lived component, constructed once at process startup.
type App struct {
	Config *common.Config
	Logger *common.Logger

	Storage interfaces.StorageManager

	Policy   *auth.Policy
	Crawler  *crawler.Client
	LLM      *llm.Client
	Intake   *intake.Coordinator
	Deletion *deletion.Coordinator
	Search   *search.Service
	QA       *qa.Service

	Executor  *pipeline.Executor
	Worker    *worker.Loop
	Reconcile *reconcile.Sweeper
	Events    *jobevents.Hub

	httpServer *server.Server
}

// New connects both storage engines and constructs every service. Callers
// decide which of Server()/Worker()/Reconcile() to run.
func New(ctx context.Context, configPath string) (*App, error) {
	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(cfg.Logging.Level)

	storageManager, err := storage.NewManager(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	crawlerClient := crawler.NewClient(
		crawler.WithLogger(logger),
		crawler.WithRateLimit(cfg.Crawler.RateLimitPerSec, cfg.Crawler.Burst),
		crawler.WithTimeout(cfg.Crawler.GetTimeout()),
		crawler.WithUserAgent(cfg.Crawler.UserAgent),
	)

	llmClient, err := llm.NewClient(ctx, cfg.LLM.APIKey, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	policy := auth.New()

	events := jobevents.New(logger)
	go events.Run()

	intakeCoordinator := intake.New(storageManager.Publishers(), storageManager.Jobs(), storageManager.Artifacts(), policy, logger).WithEvents(events)
	deletionCoordinator := deletion.New(storageManager.Artifacts())
	searchService := search.New(storageManager.Artifacts(), llmClient)
	qaService := qa.New(storageManager.Artifacts(), llmClient, logger)

	executor := pipeline.New(storageManager.Publishers(), storageManager.Jobs(), storageManager.Artifacts(), crawlerClient, llmClient, logger).WithEvents(events)
	workerLoop := worker.New(storageManager.Jobs(), executor, logger, cfg.Worker)
	sweeper := reconcile.New(storageManager.Publishers(), storageManager.Jobs(), logger, cfg.Reconcile.GetInterval())

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Storage:   storageManager,
		Policy:    policy,
		Crawler:   crawlerClient,
		LLM:       llmClient,
		Intake:    intakeCoordinator,
		Deletion:  deletionCoordinator,
		Search:    searchService,
		QA:        qaService,
		Executor:  executor,
		Worker:    workerLoop,
		Reconcile: sweeper,
		Events:    events,
	}
	return a, nil
}

// Server lazily builds the HTTP server on first call.
func (a *App) Server() *server.Server {
	if a.httpServer == nil {
		a.httpServer = server.New(a.Config, a.Logger, a.Storage, a.Policy, a.Intake, a.Deletion, a.Search, a.QA, a.Events)
	}
	return a.httpServer
}

// StartReconcile launches the slot reconciliation sweep if enabled in config.
func (a *App) StartReconcile(ctx context.Context) {
	if !a.Config.Reconcile.Enabled {
		a.Logger.Info().Msg("slot reconciliation sweep disabled by config")
		return
	}
	a.Reconcile.Start(ctx)
}

// Close releases every resource the App owns. Safe to call once at shutdown.
func (a *App) Close() error {
	a.Worker.Stop()
	a.Reconcile.Stop()
	a.Events.Stop()
	return a.Storage.Close()
}
