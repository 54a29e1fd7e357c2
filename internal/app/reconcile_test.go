package app

import (
	"context"
	"errors"
	"testing"

	"github.com/dropstrike/ledger-service/internal/store"
	"github.com/google/uuid"
)

type reconcileRepoStub struct {
	store.Repository

	storedBalance int64
	entrySum      int64
	reconcileErr  error
	accountIDs    []uuid.UUID

	frozenSet   bool
	frozenValue bool
}

func (s *reconcileRepoStub) ReconcileAccount(ctx context.Context, accountID uuid.UUID) (int64, int64, error) {
	if s.reconcileErr != nil {
		return 0, 0, s.reconcileErr
	}
	return s.storedBalance, s.entrySum, nil
}

func (s *reconcileRepoStub) SetAccountFrozen(ctx context.Context, accountID uuid.UUID, frozen bool) error {
	s.frozenSet = true
	s.frozenValue = frozen
	return nil
}

func (s *reconcileRepoStub) ListAccountIDs(ctx context.Context, limit int, offset int) ([]uuid.UUID, error) {
	if offset >= len(s.accountIDs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.accountIDs) {
		end = len(s.accountIDs)
	}
	return s.accountIDs[offset:end], nil
}

type recordingPublisher struct {
	routingKeys []string
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	return nil
}

func (p *recordingPublisher) Close() {}

func TestReconcileAccountConsistent(t *testing.T) {
	repo := &reconcileRepoStub{storedBalance: 1500, entrySum: 1500}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	report, err := s.ReconcileAccount(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("ReconcileAccount returned error: %v", err)
	}
	if !report.Consistent {
		t.Fatal("expected consistent report")
	}
	if repo.frozenSet {
		t.Fatal("a consistent account must not be frozen")
	}
}

func TestReconcileAccountMismatchFreezes(t *testing.T) {
	repo := &reconcileRepoStub{storedBalance: 1500, entrySum: 1400}
	publisher := &recordingPublisher{}
	s := NewService(repo, &gatewayStub{}, publisher, testPayoutPolicy(), 0)

	report, err := s.ReconcileAccount(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("ReconcileAccount returned error: %v", err)
	}
	if report.Consistent {
		t.Fatal("expected mismatch report")
	}
	if !report.Frozen {
		t.Fatal("expected report to record the freeze")
	}
	if !repo.frozenSet || !repo.frozenValue {
		t.Fatal("expected the account to be frozen")
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != "account.frozen" {
		t.Fatalf("expected one account.frozen event, got %v", publisher.routingKeys)
	}
}

func TestReconcileAllAccountsCountsMismatches(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	repo := &reconcileRepoStub{storedBalance: 100, entrySum: 90, accountIDs: ids}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	checked, mismatched, err := s.ReconcileAllAccounts(context.Background())
	if err != nil {
		t.Fatalf("ReconcileAllAccounts returned error: %v", err)
	}
	if checked != len(ids) {
		t.Fatalf("expected %d accounts checked, got %d", len(ids), checked)
	}
	if mismatched != len(ids) {
		t.Fatalf("expected %d mismatches, got %d", len(ids), mismatched)
	}
}

func TestUnfreezeAccountRequiresConsistentLedger(t *testing.T) {
	repo := &reconcileRepoStub{storedBalance: 100, entrySum: 90}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	if err := s.UnfreezeAccount(context.Background(), uuid.New()); !errors.Is(err, ErrLedgerMismatch) {
		t.Fatalf("expected ErrLedgerMismatch, got %v", err)
	}
	if !repo.frozenValue {
		t.Fatal("the mismatched account must stay frozen")
	}
}

func TestUnfreezeAccountClearsFlag(t *testing.T) {
	repo := &reconcileRepoStub{storedBalance: 100, entrySum: 100}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	if err := s.UnfreezeAccount(context.Background(), uuid.New()); err != nil {
		t.Fatalf("UnfreezeAccount returned error: %v", err)
	}
	if !repo.frozenSet || repo.frozenValue {
		t.Fatal("expected the frozen flag to be cleared")
	}
}
