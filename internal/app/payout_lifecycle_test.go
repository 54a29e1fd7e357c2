package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/dropstrike/ledger-service/internal/store"
	"github.com/dropstrike/ledger-service/pkg/paypalclient"
	"github.com/google/uuid"
)

type payoutRepoStub struct {
	store.Repository

	payout  *domain.Payout
	account *domain.Account

	createErr error

	markProcessingCalled bool
	markCompletedCalled  bool
	markFailedCalled     bool
	markFailedReason     string
	setBatchCalled       bool
	setBatchID           string
	rejectCalled         bool
	cancelCalled         bool
	refundMutation       *store.BalanceMutation
}

func (s *payoutRepoStub) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	if s.account == nil {
		return nil, store.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *payoutRepoStub) FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	if s.payout == nil {
		return nil, store.ErrPayoutNotFound
	}
	copied := *s.payout
	return &copied, nil
}

func (s *payoutRepoStub) CreatePayoutWithDebit(ctx context.Context, payout *domain.Payout) error {
	if s.createErr != nil {
		return s.createErr
	}
	copied := *payout
	copied.RequestedAt = time.Now().UTC()
	s.payout = &copied
	return nil
}

func (s *payoutRepoStub) FindActivePayoutByAccount(ctx context.Context, accountID uuid.UUID) (*domain.Payout, error) {
	if s.payout == nil || s.payout.AccountID != accountID {
		return nil, nil
	}
	if s.payout.Status != domain.PayoutStatusPending && s.payout.Status != domain.PayoutStatusProcessing {
		return nil, nil
	}
	copied := *s.payout
	return &copied, nil
}

func (s *payoutRepoStub) MarkPayoutProcessing(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	s.markProcessingCalled = true
	if s.payout == nil {
		return nil, store.ErrPayoutNotFound
	}
	if s.payout.Status != domain.PayoutStatusPending {
		return nil, store.ErrInvalidPayoutState
	}
	s.payout.Status = domain.PayoutStatusProcessing
	copied := *s.payout
	return &copied, nil
}

func (s *payoutRepoStub) SetPayoutGatewayBatch(ctx context.Context, payoutID uuid.UUID, gatewayBatchID string) (*domain.Payout, error) {
	s.setBatchCalled = true
	s.setBatchID = gatewayBatchID
	s.payout.GatewayBatchID = &gatewayBatchID
	copied := *s.payout
	return &copied, nil
}

func (s *payoutRepoStub) MarkPayoutCompleted(ctx context.Context, payoutID uuid.UUID, gatewayBatchID string) (*domain.Payout, error) {
	s.markCompletedCalled = true
	if s.payout.Status != domain.PayoutStatusProcessing {
		return nil, store.ErrInvalidPayoutState
	}
	s.payout.Status = domain.PayoutStatusCompleted
	s.payout.GatewayBatchID = &gatewayBatchID
	copied := *s.payout
	return &copied, nil
}

func (s *payoutRepoStub) MarkPayoutFailed(ctx context.Context, payoutID uuid.UUID, failureReason string) (*domain.Payout, error) {
	s.markFailedCalled = true
	s.markFailedReason = failureReason
	s.payout.Status = domain.PayoutStatusFailed
	s.payout.FailureReason = &failureReason
	copied := *s.payout
	return &copied, nil
}

func (s *payoutRepoStub) CancelPayoutWithRefund(ctx context.Context, payoutID uuid.UUID, accountID uuid.UUID) (*domain.Payout, *store.BalanceMutation, error) {
	s.cancelCalled = true
	if s.payout == nil || s.payout.AccountID != accountID {
		return nil, nil, store.ErrPayoutNotFound
	}
	if s.payout.Status != domain.PayoutStatusPending {
		return nil, nil, store.ErrInvalidPayoutState
	}
	s.payout.Status = domain.PayoutStatusCancelled
	s.refundMutation = &store.BalanceMutation{EntryID: uuid.New(), Amount: s.payout.CoinsDeducted, NewBalance: s.payout.CoinsDeducted}
	copied := *s.payout
	return &copied, s.refundMutation, nil
}

func (s *payoutRepoStub) RejectPayoutWithRefund(ctx context.Context, payoutID uuid.UUID, reason string, adminNotes string) (*domain.Payout, *store.BalanceMutation, error) {
	s.rejectCalled = true
	if s.payout == nil {
		return nil, nil, store.ErrPayoutNotFound
	}
	if s.payout.Status != domain.PayoutStatusPending && s.payout.Status != domain.PayoutStatusProcessing {
		return nil, nil, store.ErrInvalidPayoutState
	}
	s.payout.Status = domain.PayoutStatusFailed
	s.payout.FailureReason = &reason
	s.refundMutation = &store.BalanceMutation{EntryID: uuid.New(), Amount: s.payout.CoinsDeducted, NewBalance: s.payout.CoinsDeducted}
	copied := *s.payout
	return &copied, s.refundMutation, nil
}

func (s *payoutRepoStub) ListPayoutsByStatus(ctx context.Context, status string, limit int) ([]domain.Payout, error) {
	if s.payout != nil && s.payout.Status == status {
		return []domain.Payout{*s.payout}, nil
	}
	return nil, nil
}

type gatewayStub struct {
	sendBatchID string
	sendErr     error
	status      string
	statusErr   error

	sendCalled   bool
	statusCalled bool
}

func (g *gatewayStub) SendPayout(ctx context.Context, receiverEmail string, amountCents int64, note string) (string, error) {
	g.sendCalled = true
	if g.sendErr != nil {
		return "", g.sendErr
	}
	return g.sendBatchID, nil
}

func (g *gatewayStub) GetPayoutStatus(ctx context.Context, batchID string) (string, error) {
	g.statusCalled = true
	if g.statusErr != nil {
		return "", g.statusErr
	}
	return g.status, nil
}

func pendingPayoutFixture() *domain.Payout {
	return &domain.Payout{
		ID:             uuid.New(),
		AccountID:      uuid.New(),
		AmountCents:    100,
		CoinsDeducted:  1000,
		PayoutEmail:    "player@example.com",
		ConversionRate: 0.001,
		NetAmountCents: 70,
		Status:         domain.PayoutStatusPending,
		RequestedAt:    time.Now().UTC(),
	}
}

func TestRequestPayoutStampsQuote(t *testing.T) {
	repo := &payoutRepoStub{}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	payout, err := s.RequestPayout(context.Background(), uuid.New(), domain.PayoutRequestPayload{
		AmountCents: 100,
		PayoutEmail: "player@example.com",
	})
	if err != nil {
		t.Fatalf("RequestPayout returned error: %v", err)
	}
	if payout.CoinsDeducted != 1000 {
		t.Fatalf("expected 1000 coins deducted, got %d", payout.CoinsDeducted)
	}
	if payout.NetAmountCents != 70 {
		t.Fatalf("expected net 70 cents, got %d", payout.NetAmountCents)
	}
	if payout.ConversionRate != 0.001 {
		t.Fatalf("expected stamped conversion rate 0.001, got %f", payout.ConversionRate)
	}
	if payout.Status != domain.PayoutStatusPending {
		t.Fatalf("expected pending status, got %s", payout.Status)
	}
}

func TestRequestPayoutReportsCoinShortfall(t *testing.T) {
	accountID := uuid.New()
	repo := &payoutRepoStub{
		account:   &domain.Account{ID: accountID, Balance: 400},
		createErr: store.ErrInsufficientBalance,
	}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	_, err := s.RequestPayout(context.Background(), accountID, domain.PayoutRequestPayload{
		AmountCents: 100,
		PayoutEmail: "player@example.com",
	})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance category, got %v", err)
	}
	var balanceErr *InsufficientBalanceError
	if !errors.As(err, &balanceErr) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if balanceErr.RequiredCoins != 1000 {
		t.Fatalf("expected 1000 required coins, got %d", balanceErr.RequiredCoins)
	}
	if balanceErr.CurrentCoins != 400 {
		t.Fatalf("expected 400 current coins, got %d", balanceErr.CurrentCoins)
	}
	if balanceErr.Shortfall() != 600 {
		t.Fatalf("expected shortfall 600, got %d", balanceErr.Shortfall())
	}
}

func TestGetActivePayout(t *testing.T) {
	payout := pendingPayoutFixture()
	repo := &payoutRepoStub{payout: payout}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	active, err := s.GetActivePayout(context.Background(), payout.AccountID)
	if err != nil {
		t.Fatalf("GetActivePayout returned error: %v", err)
	}
	if active.ID != payout.ID {
		t.Fatalf("expected payout %s, got %s", payout.ID, active.ID)
	}

	repo.payout.Status = domain.PayoutStatusCompleted
	if _, err := s.GetActivePayout(context.Background(), payout.AccountID); !errors.Is(err, store.ErrPayoutNotFound) {
		t.Fatalf("expected ErrPayoutNotFound once the payout settled, got %v", err)
	}
}

func TestRequestPayoutRejectsMissingEmail(t *testing.T) {
	accountID := uuid.New()
	repo := &payoutRepoStub{account: &domain.Account{ID: accountID}}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	_, err := s.RequestPayout(context.Background(), accountID, domain.PayoutRequestPayload{AmountCents: 100})
	if !errors.Is(err, ErrInvalidPayoutEmail) {
		t.Fatalf("expected ErrInvalidPayoutEmail, got %v", err)
	}
}

func TestRequestPayoutFallsBackToAccountEmail(t *testing.T) {
	accountID := uuid.New()
	stored := "saved@example.com"
	repo := &payoutRepoStub{account: &domain.Account{ID: accountID, PayoutEmail: &stored}}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	payout, err := s.RequestPayout(context.Background(), accountID, domain.PayoutRequestPayload{AmountCents: 100})
	if err != nil {
		t.Fatalf("RequestPayout returned error: %v", err)
	}
	if payout.PayoutEmail != stored {
		t.Fatalf("expected stored payout email %q, got %q", stored, payout.PayoutEmail)
	}
}

func TestProcessPayoutGatewayRejectionFailsWithoutRefund(t *testing.T) {
	repo := &payoutRepoStub{payout: pendingPayoutFixture()}
	gateway := &gatewayStub{sendErr: &paypalclient.ErrorResponse{Name: "RECEIVER_UNREGISTERED", Message: "receiver not registered"}}
	s := NewService(repo, gateway, nil, testPayoutPolicy(), 0)

	payout, err := s.ProcessPayout(context.Background(), repo.payout.ID)
	if err != nil {
		t.Fatalf("ProcessPayout returned error: %v", err)
	}
	if payout.Status != domain.PayoutStatusFailed {
		t.Fatalf("expected failed status, got %s", payout.Status)
	}
	if !repo.markFailedCalled {
		t.Fatal("expected MarkPayoutFailed to be called")
	}
	if repo.rejectCalled || repo.cancelCalled {
		t.Fatal("gateway rejection must not trigger a refund")
	}
}

func TestProcessPayoutAmbiguousFailureStaysProcessing(t *testing.T) {
	repo := &payoutRepoStub{payout: pendingPayoutFixture()}
	gateway := &gatewayStub{sendErr: errors.New("context deadline exceeded")}
	s := NewService(repo, gateway, nil, testPayoutPolicy(), 0)

	_, err := s.ProcessPayout(context.Background(), repo.payout.ID)
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if repo.markFailedCalled {
		t.Fatal("ambiguous failure must not mark the payout failed")
	}
	if repo.payout.Status != domain.PayoutStatusProcessing {
		t.Fatalf("expected payout left processing, got %s", repo.payout.Status)
	}
}

func TestProcessPayoutCompletesOnGatewaySuccess(t *testing.T) {
	repo := &payoutRepoStub{payout: pendingPayoutFixture()}
	gateway := &gatewayStub{sendBatchID: "BATCH-1", status: "SUCCESS"}
	s := NewService(repo, gateway, nil, testPayoutPolicy(), 0)

	payout, err := s.ProcessPayout(context.Background(), repo.payout.ID)
	if err != nil {
		t.Fatalf("ProcessPayout returned error: %v", err)
	}
	if payout.Status != domain.PayoutStatusCompleted {
		t.Fatalf("expected completed status, got %s", payout.Status)
	}
	if !repo.setBatchCalled || repo.setBatchID != "BATCH-1" {
		t.Fatalf("expected batch id BATCH-1 stored, got %q", repo.setBatchID)
	}
}

func TestProcessPayoutStaysProcessingWhileBatchPending(t *testing.T) {
	repo := &payoutRepoStub{payout: pendingPayoutFixture()}
	gateway := &gatewayStub{sendBatchID: "BATCH-2", status: "PENDING"}
	s := NewService(repo, gateway, nil, testPayoutPolicy(), 0)

	payout, err := s.ProcessPayout(context.Background(), repo.payout.ID)
	if err != nil {
		t.Fatalf("ProcessPayout returned error: %v", err)
	}
	if payout.Status != domain.PayoutStatusProcessing {
		t.Fatalf("expected processing status while batch pending, got %s", payout.Status)
	}
	if repo.markCompletedCalled {
		t.Fatal("pending batch must not complete the payout")
	}
}

func TestPollProcessingPayoutsSettlesDeniedBatch(t *testing.T) {
	payout := pendingPayoutFixture()
	payout.Status = domain.PayoutStatusProcessing
	batchID := "BATCH-3"
	payout.GatewayBatchID = &batchID

	repo := &payoutRepoStub{payout: payout}
	gateway := &gatewayStub{status: "DENIED"}
	s := NewService(repo, gateway, nil, testPayoutPolicy(), 0)

	if err := s.PollProcessingPayouts(context.Background()); err != nil {
		t.Fatalf("PollProcessingPayouts returned error: %v", err)
	}
	if !repo.markFailedCalled {
		t.Fatal("expected denied batch to mark the payout failed")
	}
	if repo.rejectCalled {
		t.Fatal("denied batch must not auto-refund; operator rejects explicitly")
	}
}

func TestCancelPayoutRefundsOnce(t *testing.T) {
	payout := pendingPayoutFixture()
	repo := &payoutRepoStub{payout: payout}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	cancelled, err := s.CancelPayout(context.Background(), payout.AccountID, payout.ID)
	if err != nil {
		t.Fatalf("CancelPayout returned error: %v", err)
	}
	if cancelled.Status != domain.PayoutStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}
	if repo.refundMutation == nil || repo.refundMutation.Amount != payout.CoinsDeducted {
		t.Fatal("expected refund of the full coin cost")
	}

	if _, err := s.CancelPayout(context.Background(), payout.AccountID, payout.ID); !errors.Is(err, store.ErrInvalidPayoutState) {
		t.Fatalf("expected second cancel to fail with ErrInvalidPayoutState, got %v", err)
	}
}

func TestRejectPayoutRequiresReason(t *testing.T) {
	repo := &payoutRepoStub{payout: pendingPayoutFixture()}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	if _, err := s.RejectPayout(context.Background(), repo.payout.ID, domain.RejectPayoutPayload{}); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	if repo.rejectCalled {
		t.Fatal("reject must not reach the repository without a reason")
	}
}

func TestRejectPayoutRefunds(t *testing.T) {
	payout := pendingPayoutFixture()
	payout.Status = domain.PayoutStatusProcessing
	repo := &payoutRepoStub{payout: payout}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	rejected, err := s.RejectPayout(context.Background(), payout.ID, domain.RejectPayoutPayload{Reason: "chargeback risk"})
	if err != nil {
		t.Fatalf("RejectPayout returned error: %v", err)
	}
	if rejected.Status != domain.PayoutStatusFailed {
		t.Fatalf("expected failed status, got %s", rejected.Status)
	}
	if repo.refundMutation == nil || repo.refundMutation.Amount != payout.CoinsDeducted {
		t.Fatal("expected refund of the full coin cost")
	}
}
