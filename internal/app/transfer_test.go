package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseairosa/codesalvage-sub004/internal/domain"
	"github.com/joseairosa/codesalvage-sub004/pkg/codehostclient"
)

var transferTestNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func grantedTransfer() *domain.RepositoryTransfer {
	deadline := transferTestNow.Add(-time.Hour)
	return &domain.RepositoryTransfer{
		ID:             uuid.New(),
		TransactionID:  uuid.New(),
		RepoFullName:   "codesalvage-vault/proj-9f2a",
		BuyerHandle:    "new-owner",
		Status:         domain.TransferStatusCollaboratorGranted,
		ReviewDeadline: &deadline,
	}
}

func newTestTransferEngine(repo *ledgerStub, host *codeHostStub, notifier *notifierStub) *TransferEngine {
	return NewTransferEngine(repo, host, notifier, testLogger(), fixedClock(transferTestNow))
}

func TestAdvance_DeadlinePassedTransfersOwnership(t *testing.T) {
	transfer := grantedTransfer()
	repo := &ledgerStub{transfer: transfer, claimRows: 1}
	host := &codeHostStub{}
	notifier := &notifierStub{}
	engine := newTestTransferEngine(repo, host, notifier)

	result, err := engine.Advance(context.Background(), transfer)
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if !result.Completed {
		t.Fatal("expected transfer to complete")
	}
	if repo.claimCalls != 1 {
		t.Fatalf("expected one claim, got %d", repo.claimCalls)
	}
	if host.calls != 1 {
		t.Fatalf("expected one ownership call, got %d", host.calls)
	}
	if host.lastRepo != transfer.RepoFullName || host.lastHandle != transfer.BuyerHandle {
		t.Fatalf("ownership call used wrong target: %s -> %s", host.lastRepo, host.lastHandle)
	}
	if repo.completeCalls != 1 {
		t.Fatalf("expected one completion, got %d", repo.completeCalls)
	}
	if repo.completedTxID != transfer.TransactionID {
		t.Fatal("completion must relax the owning transaction's release date")
	}
	if len(notifier.events) != 1 || notifier.events[0] != domain.EventTransferCompleted {
		t.Fatalf("expected transfer.completed event, got %v", notifier.events)
	}
}

func TestAdvance_LostClaimSkipsOwnershipCall(t *testing.T) {
	transfer := grantedTransfer()
	repo := &ledgerStub{transfer: transfer, claimRows: 0}
	host := &codeHostStub{}
	engine := newTestTransferEngine(repo, host, &notifierStub{})

	result, err := engine.Advance(context.Background(), transfer)
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if !result.AlreadyClaimed {
		t.Fatal("expected lost claim to report already claimed")
	}
	if host.calls != 0 {
		t.Fatal("exactly one concurrent caller may invoke the ownership transfer")
	}
}

func TestAdvance_ReviewWindowStillOpen(t *testing.T) {
	transfer := grantedTransfer()
	deadline := transferTestNow.Add(time.Hour)
	transfer.ReviewDeadline = &deadline
	repo := &ledgerStub{transfer: transfer}
	host := &codeHostStub{}
	engine := newTestTransferEngine(repo, host, &notifierStub{})

	_, err := engine.Advance(context.Background(), transfer)
	if !errors.Is(err, ErrReviewWindowOpen) {
		t.Fatalf("expected ErrReviewWindowOpen, got %v", err)
	}
	if repo.claimCalls != 0 || host.calls != 0 {
		t.Fatal("no claim or ownership call before the deadline")
	}
}

func TestAdvance_TransientHostFailureLeavesClaim(t *testing.T) {
	transfer := grantedTransfer()
	repo := &ledgerStub{transfer: transfer, claimRows: 1}
	host := &codeHostStub{err: &codehostclient.APIError{StatusCode: http.StatusServiceUnavailable, Message: "maintenance"}}
	engine := newTestTransferEngine(repo, host, &notifierStub{})

	_, err := engine.Advance(context.Background(), transfer)
	if err == nil {
		t.Fatal("expected transient host error")
	}
	if KindOf(err) != KindTransient {
		t.Fatalf("expected transient kind, got %s", KindOf(err))
	}
	if repo.failCalls != 0 {
		t.Fatal("transient failures must not mark the transfer failed")
	}
	if repo.completeCalls != 0 {
		t.Fatal("transfer must not complete on a failed host call")
	}
}

func TestAdvance_PermanentHostFailureMarksFailed(t *testing.T) {
	transfer := grantedTransfer()
	repo := &ledgerStub{transfer: transfer, claimRows: 1}
	host := &codeHostStub{err: &codehostclient.APIError{StatusCode: http.StatusNotFound, Message: "repository deleted"}}
	notifier := &notifierStub{}
	engine := newTestTransferEngine(repo, host, notifier)

	_, err := engine.Advance(context.Background(), transfer)
	if err == nil {
		t.Fatal("expected permanent host error")
	}
	if KindOf(err) != KindPermanent {
		t.Fatalf("expected permanent kind, got %s", KindOf(err))
	}
	if repo.failCalls != 1 {
		t.Fatal("expected transfer to be marked failed for manual resolution")
	}
	if len(notifier.events) != 1 || notifier.events[0] != domain.EventTransferFailed {
		t.Fatalf("expected transfer.failed event for operators, got %v", notifier.events)
	}
}

func TestAdvance_ConflictMeansEarlierAttemptSucceeded(t *testing.T) {
	transfer := grantedTransfer()
	transfer.Status = domain.TransferStatusInitiated
	repo := &ledgerStub{transfer: transfer}
	host := &codeHostStub{err: &codehostclient.APIError{StatusCode: http.StatusConflict, Message: "already transferred"}}
	engine := newTestTransferEngine(repo, host, &notifierStub{})

	result, err := engine.Advance(context.Background(), transfer)
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if !result.Completed {
		t.Fatal("a conflict answer confirms the earlier attempt; transfer must complete")
	}
	if repo.completeCalls != 1 {
		t.Fatalf("expected one completion, got %d", repo.completeCalls)
	}
}

func TestAdvance_StuckTransferRetriesWithoutReclaim(t *testing.T) {
	transfer := grantedTransfer()
	transfer.Status = domain.TransferStatusInitiated
	initiated := transferTestNow.Add(-2 * time.Hour)
	transfer.InitiatedAt = &initiated
	repo := &ledgerStub{transfer: transfer}
	host := &codeHostStub{}
	engine := newTestTransferEngine(repo, host, &notifierStub{})

	result, err := engine.Advance(context.Background(), transfer)
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if !result.Retried {
		t.Fatal("expected stuck transfer to be flagged as a retry")
	}
	if repo.claimCalls != 0 {
		t.Fatal("a stuck transfer is already claimed; no second claim allowed")
	}
	if host.calls != 1 || !result.Completed {
		t.Fatal("expected retry to perform and confirm the ownership call")
	}
}

func TestAdvance_CompletedTransferIsNoOp(t *testing.T) {
	transfer := grantedTransfer()
	transfer.Status = domain.TransferStatusCompleted
	repo := &ledgerStub{transfer: transfer}
	host := &codeHostStub{}
	engine := newTestTransferEngine(repo, host, &notifierStub{})

	result, err := engine.Advance(context.Background(), transfer)
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if !result.Completed || host.calls != 0 {
		t.Fatal("completed transfer must be a no-op success")
	}
}

func TestAdvance_FailedTransferNeedsManualIntervention(t *testing.T) {
	transfer := grantedTransfer()
	transfer.Status = domain.TransferStatusFailed
	repo := &ledgerStub{transfer: transfer}
	engine := newTestTransferEngine(repo, &codeHostStub{}, &notifierStub{})

	_, err := engine.Advance(context.Background(), transfer)
	if !errors.Is(err, ErrTransferNotActionable) {
		t.Fatalf("expected ErrTransferNotActionable, got %v", err)
	}
}
