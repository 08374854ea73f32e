/**
 * @description
 * Batch job implementations for the escrow service. Each job queries the
 * ledger store for eligible records, invokes the owning engine per record, and
 * aggregates a summary while isolating per-record failures: one bad record
 * never aborts the loop, and only a failure of the eligibility query itself is
 * reported as a job-level error.
 */

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseairosa/codesalvage-sub004/internal/config"
	"github.com/joseairosa/codesalvage-sub004/internal/domain"
)

// LedgerStore defines the eligibility queries needed by the batch jobs.
type LedgerStore interface {
	FindEligibleForRelease(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error)
	FindEligibleForTransfer(ctx context.Context, now time.Time, limit int) ([]domain.RepositoryTransfer, error)
	FindStuckTransfers(ctx context.Context, initiatedBefore time.Time, limit int) ([]domain.RepositoryTransfer, error)
}

// EscrowReleaser releases one held transaction.
type EscrowReleaser interface {
	Release(ctx context.Context, txn *domain.Transaction) (*ReleaseResult, error)
}

// TransferAdvancer advances one repository transfer.
type TransferAdvancer interface {
	Advance(ctx context.Context, transfer *domain.RepositoryTransfer) (*AdvanceResult, error)
}

// JobLock is a best-effort guard against the same job piling up across
// overlapping cron/HTTP invocations. Correctness never depends on it; the
// per-record conditional updates remain the real protection.
type JobLock interface {
	Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, job string)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	store     LedgerStore
	escrow    EscrowReleaser
	transfers TransferAdvancer
	lock      JobLock
	logger    *slog.Logger
	config    config.Config
	now       func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(store LedgerStore, escrow EscrowReleaser, transfers TransferAdvancer, lock JobLock, logger *slog.Logger, cfg config.Config, now func() time.Time) *Jobs {
	if now == nil {
		now = time.Now
	}
	return &Jobs{
		store:     store,
		escrow:    escrow,
		transfers: transfers,
		lock:      lock,
		logger:    logger,
		config:    cfg,
		now:       now,
	}
}

// ReleaseEscrowBatch releases every held transaction whose release conditions
// are met. Per-record failures are counted, logged and skipped; the returned
// error is non-nil only when the eligibility query itself fails.
func (j *Jobs) ReleaseEscrowBatch(ctx context.Context) (*domain.ReleaseBatchSummary, error) {
	now := j.now().UTC()
	summary := &domain.ReleaseBatchSummary{Timestamp: now}

	acquired, err := j.lock.Acquire(ctx, "release_escrow", j.config.JobLockTTL)
	if err != nil {
		j.logger.Warn("job lock unavailable, proceeding without it", "job", "release_escrow", "error", err)
	} else if !acquired {
		j.logger.Info("release escrow batch skipped, previous run still holds the lock")
		return summary, nil
	} else {
		defer j.lock.Release(ctx, "release_escrow")
	}

	txns, err := j.store.FindEligibleForRelease(ctx, now, j.config.ReleaseBatchLimit)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		j.logger.Info("no transactions eligible for escrow release")
		return summary, nil
	}
	j.logger.Info("found transactions eligible for escrow release", "count", len(txns))

	for i := range txns {
		txn := &txns[i]
		summary.Processed++

		result, err := j.escrow.Release(ctx, txn)
		if err != nil {
			summary.Failed++
			j.logger.Error("failed to release escrow",
				"transaction_id", txn.ID, "kind", KindOf(err), "error", err)
			continue
		}
		summary.Successful++
		if result.AlreadyReleased {
			j.logger.Info("escrow release was a no-op", "transaction_id", txn.ID)
		} else {
			j.logger.Info("escrow released",
				"transaction_id", txn.ID, "amount", txn.SellerReceives, "gateway_transfer_id", result.GatewayTransferID)
		}
	}

	j.logger.Info("escrow release batch finished",
		"processed", summary.Processed, "successful", summary.Successful, "failed", summary.Failed)
	return summary, nil
}

// ProcessTransfersBatch advances every transfer whose review deadline has
// passed, then retries transfers stuck in 'transfer_initiated' beyond the
// grace period. The two groups come from distinct queries so a retry can
// never race a fresh initiation.
func (j *Jobs) ProcessTransfersBatch(ctx context.Context) (*domain.TransferBatchSummary, error) {
	now := j.now().UTC()
	summary := &domain.TransferBatchSummary{Timestamp: now}

	acquired, err := j.lock.Acquire(ctx, "process_transfers", j.config.JobLockTTL)
	if err != nil {
		j.logger.Warn("job lock unavailable, proceeding without it", "job", "process_transfers", "error", err)
	} else if !acquired {
		j.logger.Info("transfer batch skipped, previous run still holds the lock")
		return summary, nil
	} else {
		defer j.lock.Release(ctx, "process_transfers")
	}

	due, err := j.store.FindEligibleForTransfer(ctx, now, j.config.TransferBatchLimit)
	if err != nil {
		return nil, err
	}
	j.advanceTransfers(ctx, due, false, summary)

	stuckCutoff := now.Add(-j.config.StuckTransferGrace)
	stuck, err := j.store.FindStuckTransfers(ctx, stuckCutoff, j.config.TransferBatchLimit)
	if err != nil {
		// The due transfers above were already handled; report what happened
		// and let the next cycle pick up the stuck ones.
		j.logger.Error("failed to query stuck transfers", "error", err)
		return summary, nil
	}
	j.advanceTransfers(ctx, stuck, true, summary)

	j.logger.Info("transfer batch finished",
		"processed", summary.Processed, "successful", summary.Successful,
		"failed", summary.Failed, "retried", summary.Retried)
	return summary, nil
}

func (j *Jobs) advanceTransfers(ctx context.Context, transfers []domain.RepositoryTransfer, retry bool, summary *domain.TransferBatchSummary) {
	for i := range transfers {
		transfer := &transfers[i]
		summary.Processed++
		if retry {
			summary.Retried++
		}

		result, err := j.transfers.Advance(ctx, transfer)
		if err != nil {
			summary.Failed++
			j.logger.Error("failed to advance transfer",
				"transfer_id", transfer.ID, "retry", retry, "kind", KindOf(err), "error", err)
			continue
		}
		summary.Successful++
		switch {
		case result.AlreadyClaimed:
			j.logger.Info("transfer already claimed elsewhere", "transfer_id", transfer.ID)
		case result.Completed:
			j.logger.Info("repository ownership transferred",
				"transfer_id", transfer.ID, "repo", transfer.RepoFullName, "retry", retry)
		}
	}
}

// RunReleaseEscrow adapts ReleaseEscrowBatch to a cron entrypoint.
func (j *Jobs) RunReleaseEscrow() {
	j.logger.Info("starting escrow release job")
	if _, err := j.ReleaseEscrowBatch(context.Background()); err != nil {
		j.logger.Error("escrow release job failed", "error", err)
	}
}

// RunProcessTransfers adapts ProcessTransfersBatch to a cron entrypoint.
func (j *Jobs) RunProcessTransfers() {
	j.logger.Info("starting transfer processing job")
	if _, err := j.ProcessTransfersBatch(context.Background()); err != nil {
		j.logger.Error("transfer processing job failed", "error", err)
	}
}
