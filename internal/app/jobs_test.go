package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseairosa/codesalvage-sub004/internal/config"
	"github.com/joseairosa/codesalvage-sub004/internal/domain"
)

type batchStoreStub struct {
	releaseTxns []domain.Transaction
	releaseErr  error
	due         []domain.RepositoryTransfer
	dueErr      error
	stuck       []domain.RepositoryTransfer
	stuckErr    error
}

func (s *batchStoreStub) FindEligibleForRelease(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error) {
	if s.releaseErr != nil {
		return nil, s.releaseErr
	}
	return s.releaseTxns, nil
}

func (s *batchStoreStub) FindEligibleForTransfer(ctx context.Context, now time.Time, limit int) ([]domain.RepositoryTransfer, error) {
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	return s.due, nil
}

func (s *batchStoreStub) FindStuckTransfers(ctx context.Context, before time.Time, limit int) ([]domain.RepositoryTransfer, error) {
	if s.stuckErr != nil {
		return nil, s.stuckErr
	}
	return s.stuck, nil
}

type releaserStub struct {
	calls   int
	failIDs map[uuid.UUID]error
}

func (s *releaserStub) Release(ctx context.Context, txn *domain.Transaction) (*ReleaseResult, error) {
	s.calls++
	if err, ok := s.failIDs[txn.ID]; ok {
		return nil, err
	}
	return &ReleaseResult{TransactionID: txn.ID.String(), Released: true}, nil
}

type advancerStub struct {
	calls   int
	failIDs map[uuid.UUID]error
}

func (s *advancerStub) Advance(ctx context.Context, transfer *domain.RepositoryTransfer) (*AdvanceResult, error) {
	s.calls++
	if err, ok := s.failIDs[transfer.ID]; ok {
		return nil, err
	}
	return &AdvanceResult{TransferID: transfer.ID.String(), Completed: true}, nil
}

type lockStub struct {
	acquired bool
	err      error
	releases int
}

func (s *lockStub) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	return s.acquired, s.err
}

func (s *lockStub) Release(ctx context.Context, job string) { s.releases++ }

func newTestJobs(store LedgerStore, releaser EscrowReleaser, advancer TransferAdvancer, lock JobLock) *Jobs {
	cfg := config.Config{
		ReleaseBatchLimit:  50,
		TransferBatchLimit: 50,
		StuckTransferGrace: 30 * time.Minute,
		JobLockTTL:         10 * time.Minute,
	}
	return NewJobs(store, releaser, advancer, lock, testLogger(), cfg, nil)
}

func TestReleaseEscrowBatch_PartialFailureIsolation(t *testing.T) {
	txns := []domain.Transaction{
		{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()},
	}
	releaser := &releaserStub{failIDs: map[uuid.UUID]error{
		txns[1].ID: newEngineError(KindPrecondition, "payout_account", txns[1].ID, ErrMissingPayoutAccount),
	}}
	jobs := newTestJobs(&batchStoreStub{releaseTxns: txns}, releaser, &advancerStub{}, &lockStub{acquired: true})

	summary, err := jobs.ReleaseEscrowBatch(context.Background())
	if err != nil {
		t.Fatalf("ReleaseEscrowBatch returned error: %v", err)
	}
	if releaser.calls != 3 {
		t.Fatalf("a failing record must not abort the loop; got %d calls", releaser.calls)
	}
	if summary.Processed != 3 || summary.Successful != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestReleaseEscrowBatch_StoreFailureIsJobLevel(t *testing.T) {
	store := &batchStoreStub{releaseErr: errors.New("connection refused")}
	jobs := newTestJobs(store, &releaserStub{}, &advancerStub{}, &lockStub{acquired: true})

	if _, err := jobs.ReleaseEscrowBatch(context.Background()); err == nil {
		t.Fatal("expected job-level error when the eligibility query fails")
	}
}

func TestReleaseEscrowBatch_SkipsWhenLockHeld(t *testing.T) {
	releaser := &releaserStub{}
	jobs := newTestJobs(&batchStoreStub{releaseTxns: []domain.Transaction{{ID: uuid.New()}}}, releaser, &advancerStub{}, &lockStub{acquired: false})

	summary, err := jobs.ReleaseEscrowBatch(context.Background())
	if err != nil {
		t.Fatalf("skipped run must not error: %v", err)
	}
	if releaser.calls != 0 {
		t.Fatal("expected run to be skipped while the lock is held")
	}
	if summary.Processed != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}

func TestReleaseEscrowBatch_ProceedsWhenLockUnavailable(t *testing.T) {
	releaser := &releaserStub{}
	lock := &lockStub{err: errors.New("redis down")}
	jobs := newTestJobs(&batchStoreStub{releaseTxns: []domain.Transaction{{ID: uuid.New()}}}, releaser, &advancerStub{}, lock)

	if _, err := jobs.ReleaseEscrowBatch(context.Background()); err != nil {
		t.Fatalf("lock errors must not block the batch: %v", err)
	}
	if releaser.calls != 1 {
		t.Fatal("expected batch to run without the lock")
	}
}

func TestProcessTransfersBatch_CountsRetriesSeparately(t *testing.T) {
	due := domain.RepositoryTransfer{ID: uuid.New()}
	stuck := domain.RepositoryTransfer{ID: uuid.New()}
	advancer := &advancerStub{}
	jobs := newTestJobs(&batchStoreStub{
		due:   []domain.RepositoryTransfer{due},
		stuck: []domain.RepositoryTransfer{stuck},
	}, &releaserStub{}, advancer, &lockStub{acquired: true})

	summary, err := jobs.ProcessTransfersBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessTransfersBatch returned error: %v", err)
	}
	if advancer.calls != 2 {
		t.Fatalf("expected both groups to be advanced, got %d calls", advancer.calls)
	}
	if summary.Processed != 2 || summary.Successful != 2 || summary.Retried != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestProcessTransfersBatch_IsolatesFailures(t *testing.T) {
	transfers := []domain.RepositoryTransfer{{ID: uuid.New()}, {ID: uuid.New()}}
	advancer := &advancerStub{failIDs: map[uuid.UUID]error{
		transfers[0].ID: newEngineError(KindTransient, "ownership_transfer", transfers[0].ID, errors.New("host timeout")),
	}}
	jobs := newTestJobs(&batchStoreStub{due: transfers}, &releaserStub{}, advancer, &lockStub{acquired: true})

	summary, err := jobs.ProcessTransfersBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessTransfersBatch returned error: %v", err)
	}
	if summary.Processed != 2 || summary.Successful != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestProcessTransfersBatch_StuckQueryFailureIsNotFatal(t *testing.T) {
	due := []domain.RepositoryTransfer{{ID: uuid.New()}}
	advancer := &advancerStub{}
	jobs := newTestJobs(&batchStoreStub{due: due, stuckErr: errors.New("db hiccup")}, &releaserStub{}, advancer, &lockStub{acquired: true})

	summary, err := jobs.ProcessTransfersBatch(context.Background())
	if err != nil {
		t.Fatalf("stuck-query failure must not fail the whole job: %v", err)
	}
	if summary.Processed != 1 || summary.Successful != 1 {
		t.Fatalf("due transfers must still be processed, got %+v", summary)
	}
}

func TestProcessTransfersBatch_DueQueryFailureIsJobLevel(t *testing.T) {
	jobs := newTestJobs(&batchStoreStub{dueErr: errors.New("connection refused")}, &releaserStub{}, &advancerStub{}, &lockStub{acquired: true})

	if _, err := jobs.ProcessTransfersBatch(context.Background()); err == nil {
		t.Fatal("expected job-level error when the eligibility query fails")
	}
}
