package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dropstrike/ledger-service/internal/app"
	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/dropstrike/ledger-service/internal/store"
	"github.com/google/uuid"
)

type payoutHandlerRepoStub struct {
	store.Repository

	account      *domain.Account
	activePayout *domain.Payout
	createErr    error
}

func (s *payoutHandlerRepoStub) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	if s.account == nil {
		return nil, store.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *payoutHandlerRepoStub) CreatePayoutWithDebit(ctx context.Context, payout *domain.Payout) error {
	return s.createErr
}

func (s *payoutHandlerRepoStub) FindActivePayoutByAccount(ctx context.Context, accountID uuid.UUID) (*domain.Payout, error) {
	return s.activePayout, nil
}

func payoutTestHandlers(repo *payoutHandlerRepoStub) *LedgerHandlers {
	policy := domain.PayoutPolicy{
		ConversionRate:     0.001,
		PlatformFeeRate:    0.05,
		GatewayFeeRate:     0.02,
		GatewayFeeMinCents: 25,
		GatewayFeeMaxCents: 2000,
		MinPayoutCents:     100,
		MaxPayoutCents:     1000000,
	}
	return NewLedgerHandlers(app.NewService(repo, nil, nil, policy, 0))
}

func authedRequest(method, target, body string, accountID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := context.WithValue(req.Context(), accountIDKey, accountID)
	return req.WithContext(ctx)
}

func TestRequestPayoutHandlerReportsShortfall(t *testing.T) {
	accountID := uuid.New()
	repo := &payoutHandlerRepoStub{
		account:   &domain.Account{ID: accountID, Balance: 400},
		createErr: store.ErrInsufficientBalance,
	}
	h := payoutTestHandlers(repo)

	rec := httptest.NewRecorder()
	h.RequestPayoutHandler(rec, authedRequest(http.MethodPost, "/payouts",
		`{"amount_cents":100,"payout_email":"player@example.com"}`, accountID))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body struct {
		Error         string `json:"error"`
		RequiredCoins int64  `json:"required_coins"`
		CurrentCoins  int64  `json:"current_coins"`
		Shortfall     int64  `json:"shortfall"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.RequiredCoins != 1000 || body.CurrentCoins != 400 || body.Shortfall != 600 {
		t.Fatalf("expected required=1000 current=400 shortfall=600, got %+v", body)
	}
}

func TestRequestPayoutHandlerEchoesBounds(t *testing.T) {
	accountID := uuid.New()
	repo := &payoutHandlerRepoStub{account: &domain.Account{ID: accountID, Balance: 100000}}
	h := payoutTestHandlers(repo)

	rec := httptest.NewRecorder()
	h.RequestPayoutHandler(rec, authedRequest(http.MethodPost, "/payouts",
		`{"amount_cents":5,"payout_email":"player@example.com"}`, accountID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Error          string `json:"error"`
		MinPayoutCents int64  `json:"min_payout_cents"`
		MaxPayoutCents int64  `json:"max_payout_cents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.MinPayoutCents != 100 || body.MaxPayoutCents != 1000000 {
		t.Fatalf("expected bounds 100/1000000 echoed, got %+v", body)
	}
}

func TestGetActivePayoutHandler(t *testing.T) {
	accountID := uuid.New()
	active := &domain.Payout{
		ID:        uuid.New(),
		AccountID: accountID,
		Status:    domain.PayoutStatusPending,
	}
	repo := &payoutHandlerRepoStub{activePayout: active}
	h := payoutTestHandlers(repo)

	rec := httptest.NewRecorder()
	h.GetActivePayoutHandler(rec, authedRequest(http.MethodGet, "/payouts/active", "", accountID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payout domain.Payout
	if err := json.NewDecoder(rec.Body).Decode(&payout); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payout.ID != active.ID {
		t.Fatalf("expected payout %s, got %s", active.ID, payout.ID)
	}

	repo.activePayout = nil
	rec = httptest.NewRecorder()
	h.GetActivePayoutHandler(rec, authedRequest(http.MethodGet, "/payouts/active", "", accountID))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no in-flight payout, got %d", rec.Code)
	}
}
