/**
 * @description
 * EscrowEngine owns the transaction escrow state machine (held -> released).
 * Release wraps the payment gateway payout in a guarded state transition so
 * that overlapping batch runs can never double-pay a seller.
 *
 * Key features:
 * - Ordered, named precondition checks before any external call.
 * - Gateway payouts tagged with the transaction ID for deduplication.
 * - Terminal held -> released transition via conditional update; a lost race
 *   is treated as already-released, not as a failure.
 * - Best-effort notifications that never affect ledger state.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and ledger access.
 * - pkg/paygateclient: Error classification for gateway failures.
 */

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseairosa/codesalvage-sub004/internal/domain"
	"github.com/joseairosa/codesalvage-sub004/internal/store"
	"github.com/joseairosa/codesalvage-sub004/pkg/paygateclient"
)

// PaymentGateway moves held funds to a seller's payout account. Calls are
// deduplicated by the gateway per idempotency tag, so repeating a call with
// the same tag is safe.
type PaymentGateway interface {
	Transfer(ctx context.Context, destinationAccount string, amountCents int64, idempotencyTag string) (string, error)
}

// Notifier dispatches best-effort notification events. Failures are logged
// by callers and never propagated as operation failures.
type Notifier interface {
	PublishNotification(ctx context.Context, eventType, recipient string, payload interface{}) error
}

// ReleaseResult reports the outcome of one escrow release.
type ReleaseResult struct {
	TransactionID     string
	Released          bool
	AlreadyReleased   bool
	GatewayTransferID string
}

// EscrowEngine performs escrow releases against the ledger store.
type EscrowEngine struct {
	repo     store.Repository
	gateway  PaymentGateway
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewEscrowEngine creates a new escrow engine. The clock is injected so tests
// can pin time.
func NewEscrowEngine(repo store.Repository, gateway PaymentGateway, notifier Notifier, logger *slog.Logger, now func() time.Time) *EscrowEngine {
	if now == nil {
		now = time.Now
	}
	return &EscrowEngine{repo: repo, gateway: gateway, notifier: notifier, logger: logger, now: now}
}

// Release moves a held transaction's funds to the seller and marks the escrow
// released. The record is re-read first so a long-running batch never acts on
// a stale snapshot; an already-released record is a no-op success.
func (e *EscrowEngine) Release(ctx context.Context, txn *domain.Transaction) (*ReleaseResult, error) {
	result := &ReleaseResult{TransactionID: txn.ID.String()}

	if err := txn.ValidateMoney(); err != nil {
		return nil, newEngineError(KindPrecondition, "monetary_invariant", txn.ID, err)
	}

	fresh, err := e.repo.FindTransactionByID(ctx, txn.ID)
	if err != nil {
		return nil, newEngineError(KindTransient, "reread", txn.ID, err)
	}
	if err := fresh.ValidateMoney(); err != nil {
		return nil, newEngineError(KindPrecondition, "monetary_invariant", txn.ID, err)
	}

	switch fresh.EscrowStatus {
	case domain.EscrowStatusHeld:
		// Proceed.
	case domain.EscrowStatusReleased:
		result.AlreadyReleased = true
		return result, nil
	default:
		return nil, newEngineError(KindPrecondition, "escrow_status", txn.ID,
			fmt.Errorf("%w: status is %q", ErrEscrowNotHeld, fresh.EscrowStatus))
	}

	// Structural ordering guard: funds for a transfer-gated transaction never
	// move before the repository transfer has completed. The eligibility query
	// already enforces this; the engine re-checks against the fresh record.
	if fresh.IsGatedByTransfer() {
		if fresh.TransferID == nil {
			return nil, newEngineError(KindPrecondition, "transfer_gate", txn.ID,
				fmt.Errorf("%w: gated transaction has no transfer id", ErrTransferNotCompleted))
		}
		transfer, err := e.repo.FindTransferByID(ctx, *fresh.TransferID)
		if err != nil {
			return nil, newEngineError(KindTransient, "transfer_gate", txn.ID, err)
		}
		if transfer.Status != domain.TransferStatusCompleted {
			return nil, newEngineError(KindPrecondition, "transfer_gate", txn.ID,
				fmt.Errorf("%w: transfer %s is %q", ErrTransferNotCompleted, transfer.ID, transfer.Status))
		}
	}

	if fresh.SellerPayoutAccountID == nil || *fresh.SellerPayoutAccountID == "" {
		return nil, newEngineError(KindPrecondition, "payout_account", txn.ID, ErrMissingPayoutAccount)
	}

	// The gateway call is the ordering point: it happens right before the
	// terminal state transition, so a failure here leaves the record 'held'
	// and the next batch retries without extra bookkeeping.
	gatewayTransferID, err := e.gateway.Transfer(ctx, *fresh.SellerPayoutAccountID, fresh.SellerReceives, fresh.ID.String())
	if err != nil {
		kind := KindPermanent
		if paygateclient.IsRetryable(err) {
			kind = KindTransient
		}
		return nil, newEngineError(kind, "gateway_transfer", txn.ID, err)
	}
	result.GatewayTransferID = gatewayTransferID

	releasedAt := e.now().UTC()
	rows, err := e.repo.MarkTransactionReleased(ctx, fresh.ID, releasedAt)
	if err != nil {
		// Funds moved but the ledger write failed. The next batch re-runs the
		// gateway call, which dedupes on the transaction ID tag, then retries
		// this transition.
		return nil, newEngineError(KindTransient, "mark_released", txn.ID, err)
	}
	if rows == 0 {
		// A concurrent run won the terminal transition. The gateway deduped
		// the payout, so this is a no-op success.
		e.logger.Info("escrow already released by concurrent run", "transaction_id", fresh.ID)
		result.AlreadyReleased = true
		return result, nil
	}
	result.Released = true

	e.notifyRelease(ctx, fresh, releasedAt)
	return result, nil
}

func (e *EscrowEngine) notifyRelease(ctx context.Context, txn *domain.Transaction, releasedAt time.Time) {
	payload := domain.EscrowReleasedPayload{
		TransactionID: txn.ID,
		ProjectID:     txn.ProjectID,
		Amount:        txn.SellerReceives,
		ReleasedAt:    releasedAt,
	}

	if err := e.notifier.PublishNotification(ctx, domain.EventEscrowReleased, txn.SellerEmail, payload); err != nil {
		e.logger.Warn("failed to notify seller of escrow release", "transaction_id", txn.ID, "error", err)
	}
	if txn.BuyerEmail != nil && *txn.BuyerEmail != "" {
		if err := e.notifier.PublishNotification(ctx, domain.EventEscrowReleasedCopy, *txn.BuyerEmail, payload); err != nil {
			e.logger.Warn("failed to send buyer copy of escrow release", "transaction_id", txn.ID, "error", err)
		}
	}
}
