/**
 * @description
 * TransferEngine owns the repository ownership-transfer state machine
 * (pending -> collaborator_granted -> transfer_initiated -> completed, with a
 * terminal 'failed' branch). The code-host ownership call is not guaranteed
 * idempotent, so the engine claims the record with a conditional update
 * before calling out; records stuck after a claim are retried through a
 * separate query class once a grace period has passed.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and ledger access.
 * - pkg/codehostclient: Error classification for code-host failures.
 */

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseairosa/codesalvage-sub004/internal/domain"
	"github.com/joseairosa/codesalvage-sub004/internal/store"
	"github.com/joseairosa/codesalvage-sub004/pkg/codehostclient"
)

// CodeHost transfers repository ownership on the hosting platform. The call
// is not guaranteed idempotent; callers must claim the record first.
type CodeHost interface {
	TransferOwnership(ctx context.Context, repoFullName, newOwnerHandle string) error
}

// AdvanceResult reports the outcome of advancing one repository transfer.
type AdvanceResult struct {
	TransferID     string
	Completed      bool
	AlreadyClaimed bool
	Retried        bool
}

// TransferEngine advances repository transfers whose review window elapsed.
type TransferEngine struct {
	repo     store.Repository
	codeHost CodeHost
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewTransferEngine creates a new transfer engine.
func NewTransferEngine(repo store.Repository, codeHost CodeHost, notifier Notifier, logger *slog.Logger, now func() time.Time) *TransferEngine {
	if now == nil {
		now = time.Now
	}
	return &TransferEngine{repo: repo, codeHost: codeHost, notifier: notifier, logger: logger, now: now}
}

// Advance moves a transfer towards 'completed'. For a 'collaborator_granted'
// record past its review deadline it claims the record and performs the
// ownership transfer; for a record already stuck in 'transfer_initiated' it
// retries the ownership call without re-claiming.
func (e *TransferEngine) Advance(ctx context.Context, transfer *domain.RepositoryTransfer) (*AdvanceResult, error) {
	result := &AdvanceResult{TransferID: transfer.ID.String()}

	fresh, err := e.repo.FindTransferByID(ctx, transfer.ID)
	if err != nil {
		return nil, newEngineError(KindTransient, "reread", transfer.ID, err)
	}

	switch fresh.Status {
	case domain.TransferStatusCollaboratorGranted:
		if !fresh.ReviewDeadlinePassed(e.now()) {
			return nil, newEngineError(KindPrecondition, "review_deadline", transfer.ID, ErrReviewWindowOpen)
		}
		rows, err := e.repo.ClaimTransferInitiation(ctx, fresh.ID, e.now().UTC())
		if err != nil {
			return nil, newEngineError(KindTransient, "claim", transfer.ID, err)
		}
		if rows == 0 {
			// A concurrent run claimed the record first; it owns the
			// ownership call now. No-op success.
			e.logger.Info("transfer already claimed by concurrent run", "transfer_id", fresh.ID)
			result.AlreadyClaimed = true
			return result, nil
		}
		return e.performOwnershipTransfer(ctx, fresh, result)

	case domain.TransferStatusInitiated:
		// Stuck-record retry path: the claim was written but the code-host
		// call never confirmed. Safe to retry the call; the code host answers
		// with a conflict if the earlier attempt actually went through.
		result.Retried = true
		return e.performOwnershipTransfer(ctx, fresh, result)

	case domain.TransferStatusCompleted:
		result.Completed = true
		return result, nil

	default:
		return nil, newEngineError(KindPrecondition, "transfer_status", transfer.ID,
			fmt.Errorf("%w: status is %q", ErrTransferNotActionable, fresh.Status))
	}
}

func (e *TransferEngine) performOwnershipTransfer(ctx context.Context, transfer *domain.RepositoryTransfer, result *AdvanceResult) (*AdvanceResult, error) {
	err := e.codeHost.TransferOwnership(ctx, transfer.RepoFullName, transfer.BuyerHandle)
	switch {
	case err == nil || codehostclient.IsAlreadyTransferred(err):
		// Confirmed, either now or by an earlier attempt whose response was lost.

	case codehostclient.IsPermanent(err):
		// Unrecoverable (e.g. buyer account or repository gone). Stop
		// retrying and flag for manual resolution.
		reason := err.Error()
		if failErr := e.repo.MarkTransferFailed(ctx, transfer.ID, reason); failErr != nil {
			return nil, newEngineError(KindTransient, "mark_failed", transfer.ID, failErr)
		}
		e.notifyFailure(ctx, transfer, reason)
		return nil, newEngineError(KindPermanent, "ownership_transfer", transfer.ID, err)

	default:
		// Transient: leave the record in 'transfer_initiated' so the
		// stuck-transfer query retries it after the grace period.
		return nil, newEngineError(KindTransient, "ownership_transfer", transfer.ID, err)
	}

	completedAt := e.now().UTC()
	if err := e.repo.CompleteTransfer(ctx, transfer.ID, transfer.TransactionID, completedAt); err != nil {
		return nil, newEngineError(KindTransient, "complete", transfer.ID, err)
	}
	result.Completed = true

	payload := domain.TransferCompletedPayload{
		TransferID:    transfer.ID,
		TransactionID: transfer.TransactionID,
		RepoFullName:  transfer.RepoFullName,
		CompletedAt:   completedAt,
	}
	if err := e.notifier.PublishNotification(ctx, domain.EventTransferCompleted, transfer.BuyerHandle, payload); err != nil {
		e.logger.Warn("failed to notify buyer of completed transfer", "transfer_id", transfer.ID, "error", err)
	}

	return result, nil
}

func (e *TransferEngine) notifyFailure(ctx context.Context, transfer *domain.RepositoryTransfer, reason string) {
	payload := domain.TransferFailedPayload{
		TransferID:    transfer.ID,
		TransactionID: transfer.TransactionID,
		RepoFullName:  transfer.RepoFullName,
		Reason:        reason,
	}
	if err := e.notifier.PublishNotification(ctx, domain.EventTransferFailed, "operators", payload); err != nil {
		e.logger.Warn("failed to publish transfer failure event", "transfer_id", transfer.ID, "error", err)
	}
}
