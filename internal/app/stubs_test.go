package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseairosa/codesalvage-sub004/internal/domain"
)

// ledgerStub implements store.Repository for engine tests.
type ledgerStub struct {
	txn         *domain.Transaction
	txnErr      error
	transfer    *domain.RepositoryTransfer
	transferErr error

	releaseRows  int64
	releaseErr   error
	releaseCalls int

	claimRows  int64
	claimErr   error
	claimCalls int

	completeErr   error
	completeCalls int
	completedTxID uuid.UUID

	failCalls  int
	failReason string
}

func (s *ledgerStub) FindTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	if s.txnErr != nil {
		return nil, s.txnErr
	}
	copied := *s.txn
	return &copied, nil
}

func (s *ledgerStub) FindEligibleForRelease(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error) {
	return nil, nil
}

func (s *ledgerStub) MarkTransactionReleased(ctx context.Context, id uuid.UUID, releasedAt time.Time) (int64, error) {
	s.releaseCalls++
	if s.releaseErr != nil {
		return 0, s.releaseErr
	}
	return s.releaseRows, nil
}

func (s *ledgerStub) FindTransferByID(ctx context.Context, id uuid.UUID) (*domain.RepositoryTransfer, error) {
	if s.transferErr != nil {
		return nil, s.transferErr
	}
	copied := *s.transfer
	return &copied, nil
}

func (s *ledgerStub) FindEligibleForTransfer(ctx context.Context, now time.Time, limit int) ([]domain.RepositoryTransfer, error) {
	return nil, nil
}

func (s *ledgerStub) FindStuckTransfers(ctx context.Context, before time.Time, limit int) ([]domain.RepositoryTransfer, error) {
	return nil, nil
}

func (s *ledgerStub) ClaimTransferInitiation(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	s.claimCalls++
	if s.claimErr != nil {
		return 0, s.claimErr
	}
	return s.claimRows, nil
}

func (s *ledgerStub) CompleteTransfer(ctx context.Context, transferID, transactionID uuid.UUID, at time.Time) error {
	s.completeCalls++
	s.completedTxID = transactionID
	return s.completeErr
}

func (s *ledgerStub) MarkTransferFailed(ctx context.Context, id uuid.UUID, reason string) error {
	s.failCalls++
	s.failReason = reason
	return nil
}

// gatewayStub implements PaymentGateway.
type gatewayStub struct {
	calls      int
	lastDest   string
	lastAmount int64
	lastTag    string
	transferID string
	err        error
}

func (s *gatewayStub) Transfer(ctx context.Context, dest string, amount int64, tag string) (string, error) {
	s.calls++
	s.lastDest = dest
	s.lastAmount = amount
	s.lastTag = tag
	if s.err != nil {
		return "", s.err
	}
	return s.transferID, nil
}

// codeHostStub implements CodeHost.
type codeHostStub struct {
	calls      int
	lastRepo   string
	lastHandle string
	err        error
}

func (s *codeHostStub) TransferOwnership(ctx context.Context, repo, handle string) error {
	s.calls++
	s.lastRepo = repo
	s.lastHandle = handle
	return s.err
}

// notifierStub implements Notifier and records published events.
type notifierStub struct {
	events     []string
	recipients []string
	err        error
}

func (s *notifierStub) PublishNotification(ctx context.Context, eventType, recipient string, payload interface{}) error {
	s.events = append(s.events, eventType)
	s.recipients = append(s.recipients, recipient)
	return s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
