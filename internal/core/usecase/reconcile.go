package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
	"github.com/dkozyrev/freight-linker/internal/core/ports"
	"github.com/dkozyrev/freight-linker/internal/core/workflow"
)

const backfillJob = "backfill"

type ReconcileConfig struct {
	BatchSize      int
	Concurrency    int
	RatePerSecond  int
	CandidateRetry int
}

func (c ReconcileConfig) normalize() ReconcileConfig {
	out := c
	if out.BatchSize <= 0 {
		out.BatchSize = 200
	}
	if out.Concurrency <= 0 {
		out.Concurrency = 4
	}
	if out.RatePerSecond <= 0 {
		out.RatePerSecond = 50
	}
	if out.CandidateRetry <= 0 {
		out.CandidateRetry = 500
	}
	return out
}

// ReconcileUseCase replays resolution and state derivation over the stored
// corpus. Verify is read-only; Backfill links what it can, retries pending
// candidates, re-derives state for every touched shipment, and checkpoints
// between batches so an interrupted run resumes where it stopped.
type ReconcileUseCase struct {
	shipments   ports.ShipmentRepository
	links       ports.DocumentLinkRepository
	candidates  ports.LinkCandidateRepository
	source      ports.ClassificationSource
	checkpoints ports.CheckpointStore
	resolver    ports.DocumentResolver
	retrier     ports.Retrier
	table       *workflow.Table
	cfg         ReconcileConfig
	logger      *slog.Logger
}

func NewReconcileUseCase(
	shipments ports.ShipmentRepository,
	links ports.DocumentLinkRepository,
	candidates ports.LinkCandidateRepository,
	source ports.ClassificationSource,
	checkpoints ports.CheckpointStore,
	resolver ports.DocumentResolver,
	retrier ports.Retrier,
	table *workflow.Table,
	cfg ReconcileConfig,
	logger *slog.Logger,
) *ReconcileUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileUseCase{
		shipments:   shipments,
		links:       links,
		candidates:  candidates,
		source:      source,
		checkpoints: checkpoints,
		resolver:    resolver,
		retrier:     retrier,
		table:       table,
		cfg:         cfg.normalize(),
		logger:      logger,
	}
}

// withRetry funnels a per-item operation through the configured retrier, so
// a transient storage hiccup costs one item a few attempts, not the run.
func (uc *ReconcileUseCase) withRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	if uc.retrier == nil {
		return fn(ctx)
	}
	return uc.retrier.Execute(ctx, operation, fn)
}

// Verify compares every shipment's stored state against the state derived
// from its linked document set, without mutating anything.
func (uc *ReconcileUseCase) Verify(ctx context.Context) (*domain.VerifyReport, error) {
	report := &domain.VerifyReport{ByState: make(map[string]int)}
	var mu sync.Mutex

	afterID := ""
	for {
		ids, err := uc.shipments.ListIDs(ctx, afterID, uc.cfg.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("list shipments after %q: %w", afterID, err)
		}
		if len(ids) == 0 {
			break
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(uc.cfg.Concurrency)
		for _, id := range ids {
			id := id
			group.Go(func() error {
				entry, checkErr := uc.checkShipment(groupCtx, id)
				mu.Lock()
				defer mu.Unlock()
				report.Checked++
				switch {
				case checkErr != nil:
					report.Errors++
					uc.logger.Warn("verify_item_failed", "shipment_id", id, "error", checkErr)
				case entry != nil:
					report.Drifted++
					report.ByState[entry.StoredState]++
					report.Drift = append(report.Drift, *entry)
				default:
					report.Matching++
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		afterID = ids[len(ids)-1]
	}

	sort.Slice(report.Drift, func(i, j int) bool {
		return report.Drift[i].ShipmentID < report.Drift[j].ShipmentID
	})
	return report, nil
}

// checkShipment returns a drift entry when stored and derived state differ,
// nil when they match.
func (uc *ReconcileUseCase) checkShipment(ctx context.Context, id string) (*domain.DriftEntry, error) {
	shipment, err := uc.shipments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load shipment: %w", err)
	}
	docTypes, err := uc.links.ListDocumentTypes(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list linked document types: %w", err)
	}
	derived := uc.table.Derive(docTypes)
	if derived.Code == shipment.WorkflowState {
		return nil, nil
	}
	return &domain.DriftEntry{
		ShipmentID:    shipment.ID,
		BookingNumber: shipment.BookingNumber,
		StoredState:   shipment.WorkflowState,
		DerivedState:  derived.Code,
	}, nil
}

// Backfill applies the resolver across all historical documents not yet
// linked, retries pending candidates, then re-derives and persists state for
// every affected shipment. Safe to re-run: already-linked documents are
// excluded at the source, link creation is conflict-guarded, and state
// writes are no-ops when nothing changed.
func (uc *ReconcileUseCase) Backfill(ctx context.Context) (*domain.BackfillReport, error) {
	report := &domain.BackfillReport{}
	limiter := rate.NewLimiter(rate.Limit(uc.cfg.RatePerSecond), uc.cfg.RatePerSecond)

	affected := make(map[string]struct{})

	afterID, err := uc.checkpoints.Get(ctx, backfillJob)
	if err != nil {
		return nil, fmt.Errorf("load backfill checkpoint: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, err := uc.source.ListUnlinked(ctx, afterID, uc.cfg.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("list unlinked documents after %q: %w", afterID, err)
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			report.Scanned++
			uc.tally(ctx, report, affected, doc)
		}

		afterID = docs[len(docs)-1].EmailID
		report.LastEmailID = afterID
		if err := uc.checkpoints.Put(ctx, backfillJob, afterID); err != nil {
			return nil, fmt.Errorf("store backfill checkpoint: %w", err)
		}
	}

	// The checkpoint is a resume token for interrupted runs only. Clearing it
	// here lets the next run start from the beginning and pick up documents
	// with ids below the high-water mark; rescans are idempotent.
	if err := uc.checkpoints.Put(ctx, backfillJob, ""); err != nil {
		return nil, fmt.Errorf("clear backfill checkpoint: %w", err)
	}

	uc.retryPendingCandidates(ctx, report, affected, limiter)

	if err := uc.rederive(ctx, report, affected); err != nil {
		return nil, err
	}
	return report, nil
}

func (uc *ReconcileUseCase) tally(
	ctx context.Context,
	report *domain.BackfillReport,
	affected map[string]struct{},
	doc domain.ClassifiedDocument,
) {
	var res domain.Resolution
	err := uc.withRetry(ctx, "backfill.resolve", func(ctx context.Context) error {
		var resolveErr error
		res, resolveErr = uc.resolver.Resolve(ctx, doc)
		return resolveErr
	})
	if err != nil {
		report.Errors++
		uc.logger.Warn("backfill_item_failed", "email_id", doc.EmailID, "error", err)
		return
	}
	switch res.Outcome {
	case domain.OutcomeLinked:
		report.Linked++
		affected[res.ShipmentID] = struct{}{}
	case domain.OutcomeCreated:
		report.Created++
		affected[res.ShipmentID] = struct{}{}
	case domain.OutcomeCandidate, domain.OutcomeAmbiguous:
		report.Candidates++
	default:
		report.Skipped++
	}
}

// retryPendingCandidates re-resolves emails behind pending candidates; the
// corpus may have gained the identifiers they were missing.
func (uc *ReconcileUseCase) retryPendingCandidates(
	ctx context.Context,
	report *domain.BackfillReport,
	affected map[string]struct{},
	limiter *rate.Limiter,
) {
	pending, err := uc.candidates.ListByStatus(ctx, domain.CandidatePending, uc.cfg.CandidateRetry)
	if err != nil {
		report.Errors++
		uc.logger.Warn("list_pending_candidates_failed", "error", err)
		return
	}

	seen := make(map[string]struct{}, len(pending))
	for _, candidate := range pending {
		if _, done := seen[candidate.EmailID]; done {
			continue
		}
		seen[candidate.EmailID] = struct{}{}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		var res domain.Resolution
		err := uc.withRetry(ctx, "backfill.candidate_retry", func(ctx context.Context) error {
			var resolveErr error
			res, resolveErr = uc.resolver.ResolveByEmailID(ctx, candidate.EmailID)
			return resolveErr
		})
		if err != nil {
			report.Errors++
			uc.logger.Warn("candidate_retry_failed", "email_id", candidate.EmailID, "error", err)
			continue
		}
		if res.Outcome == domain.OutcomeLinked || res.Outcome == domain.OutcomeCreated {
			report.Linked++
			affected[res.ShipmentID] = struct{}{}
			if err := uc.candidates.UpdateStatus(ctx, candidate.ID, domain.CandidateConfirmed); err != nil {
				uc.logger.Warn("candidate_status_update_failed", "candidate_id", candidate.ID, "error", err)
			}
		}
	}
}

// rederive recomputes state for every shipment touched by this run and
// persists the derived triple when it differs from the stored one.
func (uc *ReconcileUseCase) rederive(
	ctx context.Context,
	report *domain.BackfillReport,
	affected map[string]struct{},
) error {
	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		shipment, err := uc.shipments.GetByID(ctx, id)
		if err != nil {
			report.Errors++
			uc.logger.Warn("rederive_load_failed", "shipment_id", id, "error", err)
			continue
		}
		docTypes, err := uc.links.ListDocumentTypes(ctx, id)
		if err != nil {
			report.Errors++
			uc.logger.Warn("rederive_list_failed", "shipment_id", id, "error", err)
			continue
		}
		derived := uc.table.Derive(docTypes)
		if derived.Code == shipment.WorkflowState {
			continue
		}
		var applied bool
		err = uc.withRetry(ctx, "backfill.set_state", func(ctx context.Context) error {
			var setErr error
			applied, setErr = uc.shipments.SetState(ctx, id, derived)
			return setErr
		})
		if err != nil {
			report.Errors++
			uc.logger.Warn("rederive_apply_failed", "shipment_id", id, "error", err)
			continue
		}
		if applied {
			report.Updated++
			report.Transitions = append(report.Transitions, domain.StateTransition{
				ShipmentID:    shipment.ID,
				BookingNumber: shipment.BookingNumber,
				OldState:      shipment.WorkflowState,
				NewState:      derived.Code,
			})
		}
	}
	return nil
}
