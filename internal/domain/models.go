/**
 * @description
 * This file defines the core domain models for the escrow service: the
 * transaction ledger record, the repository ownership-transfer workflow record,
 * and the summaries produced by the periodic batch jobs.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents), which
 *   avoids floating-point inaccuracies with financial data.
 * - Status fields are plain strings matching the values stored in Postgres.
 */

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Payment status values for a transaction. Immutable once 'succeeded' or 'failed'.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// Escrow status values. 'released' is terminal and must never transition again.
const (
	EscrowStatusPending  = "pending"
	EscrowStatusHeld     = "held"
	EscrowStatusReleased = "released"
	EscrowStatusDisputed = "disputed"
)

// ReleaseKind discriminates how a transaction becomes eligible for escrow
// release: a plain timer, or a timer gated on the linked repository transfer
// reaching 'completed'.
const (
	ReleaseKindDirectTimer     = "direct_timer"
	ReleaseKindGatedByTransfer = "gated_by_transfer"
)

// Repository transfer status values. Strictly forward-moving except 'failed',
// which is terminal and requires manual intervention.
const (
	TransferStatusPending             = "pending"
	TransferStatusCollaboratorGranted = "collaborator_granted"
	TransferStatusInReview            = "in_review"
	TransferStatusInitiated           = "transfer_initiated"
	TransferStatusCompleted           = "completed"
	TransferStatusFailed              = "failed"
)

// Notification event types published to the message broker.
const (
	EventEscrowReleased     = "escrow.released"
	EventEscrowReleasedCopy = "escrow.released.buyer_copy"
	EventTransferCompleted  = "transfer.completed"
	EventTransferFailed     = "transfer.failed"
)

// Transaction is the ledger record for one purchase of one project.
// It maps directly to the `transactions` table.
type Transaction struct {
	ID                    uuid.UUID  `json:"id"`
	ProjectID             uuid.UUID  `json:"project_id"`
	BuyerID               uuid.UUID  `json:"buyer_id"`
	SellerID              uuid.UUID  `json:"seller_id"`
	Amount                int64      `json:"amount"`          // in cents
	Commission            int64      `json:"commission"`      // in cents
	SellerReceives        int64      `json:"seller_receives"` // in cents
	PaymentStatus         string     `json:"payment_status"`
	EscrowStatus          string     `json:"escrow_status"`
	ReleaseKind           string     `json:"release_kind"`
	TransferID            *uuid.UUID `json:"transfer_id,omitempty"` // set when release_kind = 'gated_by_transfer'
	EscrowReleaseDate     time.Time  `json:"escrow_release_date"`
	SellerPayoutAccountID *string    `json:"seller_payout_account_id,omitempty"`
	SellerEmail           string     `json:"seller_email"`
	BuyerEmail            *string    `json:"buyer_email,omitempty"`
	ReleasedAt            *time.Time `json:"released_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// ValidateMoney checks the monetary invariant on a transaction:
// seller_receives + commission == amount, with no negative components.
func (t *Transaction) ValidateMoney() error {
	if t.Amount < 0 || t.Commission < 0 || t.SellerReceives < 0 {
		return fmt.Errorf("transaction %s has negative monetary fields", t.ID)
	}
	if t.SellerReceives+t.Commission != t.Amount {
		return fmt.Errorf("transaction %s violates monetary invariant: %d + %d != %d",
			t.ID, t.SellerReceives, t.Commission, t.Amount)
	}
	return nil
}

// IsGatedByTransfer reports whether escrow release waits on a repository transfer.
func (t *Transaction) IsGatedByTransfer() bool {
	return t.ReleaseKind == ReleaseKindGatedByTransfer
}

// RepositoryTransfer is the ownership-transfer workflow attached to a
// transaction whose project is sold with a hosted code repository.
// It maps directly to the `repository_transfers` table.
type RepositoryTransfer struct {
	ID             uuid.UUID  `json:"id"`
	TransactionID  uuid.UUID  `json:"transaction_id"`
	RepoFullName   string     `json:"repo_full_name"` // e.g. "codesalvage-vault/proj-9f2a"
	BuyerHandle    string     `json:"buyer_handle"`   // buyer's account on the code host
	Status         string     `json:"status"`
	ReviewDeadline *time.Time `json:"review_deadline,omitempty"` // set when collaborator access is granted
	InitiatedAt    *time.Time `json:"initiated_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FailureReason  *string    `json:"failure_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ReviewDeadlinePassed reports whether the buyer's review window has elapsed.
func (rt *RepositoryTransfer) ReviewDeadlinePassed(now time.Time) bool {
	return rt.ReviewDeadline != nil && !rt.ReviewDeadline.After(now)
}

// ReleaseBatchSummary is the result of one escrow-release batch run.
type ReleaseBatchSummary struct {
	Processed  int       `json:"processed"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Timestamp  time.Time `json:"timestamp"`
}

// TransferBatchSummary is the result of one transfer-processing batch run.
// Retried counts records picked up by the stuck-transfer query rather than the
// normal eligibility query.
type TransferBatchSummary struct {
	Processed  int       `json:"processed"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Retried    int       `json:"retried"`
	Timestamp  time.Time `json:"timestamp"`
}

// EscrowReleasedPayload is the notification payload sent when held funds are
// released to the seller.
type EscrowReleasedPayload struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	Amount        int64     `json:"amount"` // seller_receives, in cents
	ReleasedAt    time.Time `json:"released_at"`
}

// TransferCompletedPayload is the notification payload sent when repository
// ownership has been handed to the buyer.
type TransferCompletedPayload struct {
	TransferID    uuid.UUID `json:"transfer_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	RepoFullName  string    `json:"repo_full_name"`
	CompletedAt   time.Time `json:"completed_at"`
}

// TransferFailedPayload is routed to operators when a transfer hits an
// unrecoverable error and needs manual resolution.
type TransferFailedPayload struct {
	TransferID    uuid.UUID `json:"transfer_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	RepoFullName  string    `json:"repo_full_name"`
	Reason        string    `json:"reason"`
}
