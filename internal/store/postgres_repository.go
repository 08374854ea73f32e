/**
 * @description
 * PostgreSQL implementation of the ledger store `Repository` interface. All
 * SQL for the escrow service lives here: the batch eligibility queries, the
 * conditional (compare-and-swap) status transitions, and the transfer
 * completion transaction that relaxes the owning transaction's release date.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pooling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseairosa/codesalvage-sub004/internal/domain"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTransferNotFound    = errors.New("repository transfer not found")
)

// PostgresRepository implements the Repository interface using pgx.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new repository backed by the given pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const transactionColumns = `
    id, project_id, buyer_id, seller_id,
    amount, commission, seller_receives,
    payment_status, escrow_status, release_kind, transfer_id,
    escrow_release_date, seller_payout_account_id,
    seller_email, buyer_email, released_at,
    created_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.ProjectID, &t.BuyerID, &t.SellerID,
		&t.Amount, &t.Commission, &t.SellerReceives,
		&t.PaymentStatus, &t.EscrowStatus, &t.ReleaseKind, &t.TransferID,
		&t.EscrowReleaseDate, &t.SellerPayoutAccountID,
		&t.SellerEmail, &t.BuyerEmail, &t.ReleasedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTransactionByID fetches a single transaction by its ID.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.db.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find transaction %s: %w", transactionID, err)
	}
	return t, nil
}

// FindEligibleForRelease selects held transactions ready for escrow release.
// The transfer-gating clause is part of the query itself so a transaction
// whose repository transfer has not completed can never be returned, no
// matter how far past its release date the clock has moved.
func (r *PostgresRepository) FindEligibleForRelease(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error) {
	query := `
        SELECT
            t.id, t.project_id, t.buyer_id, t.seller_id,
            t.amount, t.commission, t.seller_receives,
            t.payment_status, t.escrow_status, t.release_kind, t.transfer_id,
            t.escrow_release_date, t.seller_payout_account_id,
            t.seller_email, t.buyer_email, t.released_at,
            t.created_at, t.updated_at
        FROM transactions t
        LEFT JOIN repository_transfers rt ON rt.id = t.transfer_id
        WHERE t.escrow_status = 'held'
          AND t.payment_status = 'succeeded'
          AND t.escrow_release_date <= $1
          AND (
            t.release_kind = 'direct_timer'
            OR rt.status = 'completed'
          )
        ORDER BY t.escrow_release_date
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query release-eligible transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan release-eligible transaction: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// MarkTransactionReleased performs the guarded terminal transition
// held -> released. Zero rows affected means another run won the race.
func (r *PostgresRepository) MarkTransactionReleased(ctx context.Context, transactionID uuid.UUID, releasedAt time.Time) (int64, error) {
	query := `
        UPDATE transactions
        SET escrow_status = 'released',
            released_at = $2,
            updated_at = NOW()
        WHERE id = $1
          AND escrow_status = 'held'
    `
	tag, err := r.db.Exec(ctx, query, transactionID, releasedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to mark transaction %s released: %w", transactionID, err)
	}
	return tag.RowsAffected(), nil
}

const transferColumns = `
    id, transaction_id, repo_full_name, buyer_handle, status,
    review_deadline, initiated_at, completed_at, failure_reason,
    created_at, updated_at`

func scanTransfer(row pgx.Row) (*domain.RepositoryTransfer, error) {
	var rt domain.RepositoryTransfer
	err := row.Scan(
		&rt.ID, &rt.TransactionID, &rt.RepoFullName, &rt.BuyerHandle, &rt.Status,
		&rt.ReviewDeadline, &rt.InitiatedAt, &rt.CompletedAt, &rt.FailureReason,
		&rt.CreatedAt, &rt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// FindTransferByID fetches a single repository transfer by its ID.
func (r *PostgresRepository) FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.RepositoryTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM repository_transfers WHERE id = $1`

	rt, err := scanTransfer(r.db.QueryRow(ctx, query, transferID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to find repository transfer %s: %w", transferID, err)
	}
	return rt, nil
}

// FindEligibleForTransfer selects transfers whose review window has elapsed
// and which have not yet been claimed by any batch run.
func (r *PostgresRepository) FindEligibleForTransfer(ctx context.Context, now time.Time, limit int) ([]domain.RepositoryTransfer, error) {
	query := `
        SELECT ` + transferColumns + `
        FROM repository_transfers
        WHERE status = 'collaborator_granted'
          AND review_deadline <= $1
        ORDER BY review_deadline
        LIMIT $2
    `
	return r.queryTransfers(ctx, query, now, limit)
}

// FindStuckTransfers selects claimed transfers whose ownership call never
// confirmed, older than the grace cutoff. Deliberately does not match
// 'collaborator_granted' so a retry can never race a fresh initiation.
func (r *PostgresRepository) FindStuckTransfers(ctx context.Context, initiatedBefore time.Time, limit int) ([]domain.RepositoryTransfer, error) {
	query := `
        SELECT ` + transferColumns + `
        FROM repository_transfers
        WHERE status = 'transfer_initiated'
          AND initiated_at <= $1
        ORDER BY initiated_at
        LIMIT $2
    `
	return r.queryTransfers(ctx, query, initiatedBefore, limit)
}

func (r *PostgresRepository) queryTransfers(ctx context.Context, query string, cutoff time.Time, limit int) ([]domain.RepositoryTransfer, error) {
	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query repository transfers: %w", err)
	}
	defer rows.Close()

	var transfers []domain.RepositoryTransfer
	for rows.Next() {
		rt, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repository transfer: %w", err)
		}
		transfers = append(transfers, *rt)
	}
	return transfers, rows.Err()
}

// ClaimTransferInitiation atomically claims a transfer ahead of the
// non-idempotent code-host ownership call. Only one concurrent caller can
// win this update; losers observe zero rows affected.
func (r *PostgresRepository) ClaimTransferInitiation(ctx context.Context, transferID uuid.UUID, initiatedAt time.Time) (int64, error) {
	query := `
        UPDATE repository_transfers
        SET status = 'transfer_initiated',
            initiated_at = $2,
            updated_at = NOW()
        WHERE id = $1
          AND status = 'collaborator_granted'
    `
	tag, err := r.db.Exec(ctx, query, transferID, initiatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to claim transfer %s: %w", transferID, err)
	}
	return tag.RowsAffected(), nil
}

// CompleteTransfer marks the transfer completed and eagerly relaxes the
// owning transaction's escrow release date so the very next escrow batch can
// release funds without waiting out remaining timer slack. Both updates
// commit atomically.
func (r *PostgresRepository) CompleteTransfer(ctx context.Context, transferID, transactionID uuid.UUID, completedAt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transfer completion: %w", err)
	}
	defer tx.Rollback(ctx)

	completeQuery := `
        UPDATE repository_transfers
        SET status = 'completed',
            completed_at = $2,
            updated_at = NOW()
        WHERE id = $1
          AND status = 'transfer_initiated'
    `
	tag, err := tx.Exec(ctx, completeQuery, transferID, completedAt)
	if err != nil {
		return fmt.Errorf("failed to complete transfer %s: %w", transferID, err)
	}
	if tag.RowsAffected() == 0 {
		// Already completed by an earlier retry; nothing left to do.
		return tx.Commit(ctx)
	}

	relaxQuery := `
        UPDATE transactions
        SET escrow_release_date = LEAST(escrow_release_date, $2),
            updated_at = NOW()
        WHERE id = $1
          AND escrow_status = 'held'
    `
	if _, err := tx.Exec(ctx, relaxQuery, transactionID, completedAt); err != nil {
		return fmt.Errorf("failed to relax release date for transaction %s: %w", transactionID, err)
	}

	return tx.Commit(ctx)
}

// MarkTransferFailed moves a transfer to the terminal 'failed' status.
func (r *PostgresRepository) MarkTransferFailed(ctx context.Context, transferID uuid.UUID, reason string) error {
	query := `
        UPDATE repository_transfers
        SET status = 'failed',
            failure_reason = $2,
            updated_at = NOW()
        WHERE id = $1
          AND status IN ('collaborator_granted', 'transfer_initiated')
    `
	if _, err := r.db.Exec(ctx, query, transferID, reason); err != nil {
		return fmt.Errorf("failed to mark transfer %s failed: %w", transferID, err)
	}
	return nil
}
