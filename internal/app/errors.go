/**
 * @description
 * Error taxonomy shared by the escrow and transfer engines. The batch loop
 * only needs to know the kind of a failure (local precondition, external
 * transient, external permanent) and the stage that produced it; the transport
 * layer never sees per-record errors.
 */

package app

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind classifies an engine failure for retry policy and logging.
type ErrorKind string

const (
	// KindPrecondition: no external call was made; the record is untouched.
	// Re-checked on the next batch cycle but never actively retried.
	KindPrecondition ErrorKind = "precondition"
	// KindTransient: an external call failed in a retryable way; the record
	// was left in a state the next batch cycle picks up again.
	KindTransient ErrorKind = "transient"
	// KindPermanent: an external call failed in a way that retrying cannot
	// fix; the record needs manual follow-up.
	KindPermanent ErrorKind = "permanent"
)

// Named precondition failures.
var (
	ErrMissingPayoutAccount  = errors.New("seller has no payout account configured")
	ErrEscrowNotHeld         = errors.New("escrow is not in held status")
	ErrTransferNotCompleted  = errors.New("linked repository transfer is not completed")
	ErrReviewWindowOpen      = errors.New("review window has not elapsed")
	ErrTransferNotActionable = errors.New("transfer is not in an actionable status")
)

// EngineError wraps a per-record failure with enough context (record ID and
// stage reached) to support manual reconciliation from the logs.
type EngineError struct {
	Kind     ErrorKind
	Stage    string
	RecordID uuid.UUID
	Err      error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s failure at stage %q for record %s: %v", e.Kind, e.Stage, e.RecordID, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func newEngineError(kind ErrorKind, stage string, recordID uuid.UUID, err error) *EngineError {
	return &EngineError{Kind: kind, Stage: stage, RecordID: recordID, Err: err}
}

// KindOf extracts the error kind from an engine error chain. Unknown errors
// are treated as transient so they stay eligible for the next cycle.
func KindOf(err error) ErrorKind {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Kind
	}
	return KindTransient
}
