// Package bootstrap wires infrastructure and use cases into a running
// application. NewCore builds everything the CLI and admin server need;
// New adds the NATS queue for the resolver worker.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dkozyrev/freight-linker/internal/config"
	classification "github.com/dkozyrev/freight-linker/internal/infrastructure/classification/postgres"
	"github.com/dkozyrev/freight-linker/internal/infrastructure/queue/nats"
	"github.com/dkozyrev/freight-linker/internal/infrastructure/repository/postgres"
	"github.com/dkozyrev/freight-linker/internal/infrastructure/resilience"

	"github.com/dkozyrev/freight-linker/internal/core/ports"
	"github.com/dkozyrev/freight-linker/internal/core/usecase"
	"github.com/dkozyrev/freight-linker/internal/core/workflow"
)

type App struct {
	Config config.Config

	DB    *sql.DB
	Table *workflow.Table
	Queue ports.MessageQueue

	Shipments   ports.ShipmentRepository
	Links       ports.DocumentLinkRepository
	Candidates  ports.LinkCandidateRepository
	Source      ports.ClassificationSource
	Checkpoints ports.CheckpointStore

	ResolveUC   ports.DocumentResolver
	ReconcileUC ports.Reconciler
	ReviewUC    ports.CandidateReviewer

	Executor *resilience.Executor

	closeFn func()
}

// NewCore builds the database-backed application without a message queue.
// The CLI and the admin server run from this.
func NewCore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	table, err := workflow.Load()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load workflow table: %w", err)
	}

	shipments := postgres.NewShipmentRepository(db)
	links := postgres.NewDocumentLinkRepository(db)
	candidates := postgres.NewLinkCandidateRepository(db)
	checkpoints := postgres.NewCheckpointStore(db)
	source := classification.NewSource(db)

	resilienceCfg := resilience.DefaultConfig()
	resilienceCfg.RetryMaxAttempts = cfg.RetryMaxAttempts
	resilienceCfg.BreakerEnabled = cfg.BreakerEnabled
	executor := resilience.NewExecutor(resilienceCfg)

	resolveUC := usecase.NewResolveUseCase(shipments, links, candidates, source, table, logger)
	reconcileUC := usecase.NewReconcileUseCase(
		shipments, links, candidates, source, checkpoints, resolveUC,
		resilience.NewDomainRetrier(executor), table,
		usecase.ReconcileConfig{
			BatchSize:      cfg.BackfillBatchSize,
			Concurrency:    cfg.VerifyConcurrency,
			RatePerSecond:  cfg.BackfillRatePerSec,
			CandidateRetry: cfg.CandidateRetryMax,
		},
		logger,
	)
	reviewUC := usecase.NewReviewUseCase(shipments, links, candidates, source, table, logger)

	return &App{
		Config: cfg,

		DB:    db,
		Table: table,

		Shipments:   shipments,
		Links:       links,
		Candidates:  candidates,
		Source:      source,
		Checkpoints: checkpoints,

		ResolveUC:   resolveUC,
		ReconcileUC: reconcileUC,
		ReviewUC:    reviewUC,

		Executor: executor,

		closeFn: func() {
			_ = db.Close()
		},
	}, nil
}

// New builds the full application including the NATS queue.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	app, err := NewCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Concurrency: cfg.WorkerConcurrency,
		Executor:    app.Executor,
		Logger:      logger,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	app.Queue = queue
	coreClose := app.closeFn
	app.closeFn = func() {
		queue.Close()
		coreClose()
	}
	return app, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
