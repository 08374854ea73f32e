/**
 * @description
 * This file defines the `Repository` interface, the contract for all ledger
 * store operations required by the escrow and transfer engines. Keeping the
 * interface separate from the PostgreSQL implementation decouples the business
 * logic from the database and keeps the engines testable with stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For record identities.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/joseairosa/codesalvage-sub004/internal/domain"
)

// Repository defines the set of methods for interacting with the ledger store.
//
// Every method that performs a state transition guarded by a current-status
// check returns the number of rows affected so callers can detect a lost
// compare-and-swap race (zero rows = another batch run already handled the
// record).
type Repository interface {
	// Transaction methods
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	// FindEligibleForRelease returns held, fully paid transactions whose
	// release date has passed and, for transfer-gated transactions, whose
	// linked repository transfer is completed.
	FindEligibleForRelease(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error)
	// MarkTransactionReleased flips escrow_status 'held' -> 'released'.
	MarkTransactionReleased(ctx context.Context, transactionID uuid.UUID, releasedAt time.Time) (int64, error)

	// Repository transfer methods
	FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.RepositoryTransfer, error)
	FindEligibleForTransfer(ctx context.Context, now time.Time, limit int) ([]domain.RepositoryTransfer, error)
	// FindStuckTransfers returns transfers claimed ('transfer_initiated')
	// before the given cutoff whose code-host call never completed. This is a
	// distinct query class from FindEligibleForTransfer so a retry can never
	// race a fresh initiation attempt.
	FindStuckTransfers(ctx context.Context, initiatedBefore time.Time, limit int) ([]domain.RepositoryTransfer, error)
	// ClaimTransferInitiation flips status 'collaborator_granted' ->
	// 'transfer_initiated', claiming the record ahead of the non-idempotent
	// code-host ownership call.
	ClaimTransferInitiation(ctx context.Context, transferID uuid.UUID, initiatedAt time.Time) (int64, error)
	// CompleteTransfer marks the transfer 'completed' and relaxes the owning
	// transaction's escrow_release_date to completedAt if that is earlier,
	// in a single database transaction.
	CompleteTransfer(ctx context.Context, transferID, transactionID uuid.UUID, completedAt time.Time) error
	// MarkTransferFailed moves the transfer to the terminal 'failed' status
	// for manual resolution.
	MarkTransferFailed(ctx context.Context, transferID uuid.UUID, reason string) error
}
