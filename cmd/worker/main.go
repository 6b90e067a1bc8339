package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkozyrev/freight-linker/internal/bootstrap"
	"github.com/dkozyrev/freight-linker/internal/config"
	"github.com/dkozyrev/freight-linker/internal/core/domain"
	"github.com/dkozyrev/freight-linker/internal/observability/logging"
	"github.com/dkozyrev/freight-linker/internal/observability/metrics"
)

const serviceName = "linker-worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsHandler(workerMetrics),
	}
	go func() {
		logger.Info("metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go observeOpenCandidates(ctx, app, workerMetrics, cfg.CandidateRetryMax, logger)

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "concurrency", cfg.WorkerConcurrency)
	err = app.Queue.SubscribeEmailClassified(ctx, func(handlerCtx context.Context, emailID string, publishedAt time.Time) error {
		resolveCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()

		workerMetrics.ObserveQueueLag(serviceName, time.Since(publishedAt))
		workerMetrics.StartResolve()
		start := time.Now()
		resolution, resolveErr := app.ResolveUC.ResolveByEmailID(resolveCtx, emailID)
		workerMetrics.FinishResolve(serviceName, string(resolution.Outcome), time.Since(start), resolveErr)
		return resolveErr
	})
	if err != nil && err != context.Canceled {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

// observeOpenCandidates periodically gauges the unresolved candidate backlog
// so growth shows up on dashboards before operators go looking.
func observeOpenCandidates(ctx context.Context, app *bootstrap.App, m *metrics.WorkerMetrics, limit int, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	statuses := []domain.CandidateStatus{domain.CandidatePending, domain.CandidateAmbiguous}
	for {
		for _, status := range statuses {
			candidates, err := app.Candidates.ListByStatus(ctx, status, limit)
			if err != nil {
				logger.Warn("candidate_gauge_failed", "status", string(status), "error", err)
				continue
			}
			m.SetOpenCandidates(serviceName, string(status), len(candidates))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func metricsHandler(m *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
