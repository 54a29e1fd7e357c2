package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/dropstrike/ledger-service/internal/store"
	"github.com/google/uuid"
)

// memLedgerRepo is an in-memory Repository with the same locking discipline as
// the Postgres implementation: every balance mutation runs under that
// account's lock, so racing requests resolve to some serial order and the
// balance check always sees the latest committed value.
type memLedgerRepo struct {
	store.Repository

	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
	locks    map[uuid.UUID]*sync.Mutex
	entries  []domain.LedgerEntry
	payouts  map[uuid.UUID]*domain.Payout
}

func newMemLedgerRepo(accounts ...*domain.Account) *memLedgerRepo {
	repo := &memLedgerRepo{
		accounts: make(map[uuid.UUID]*domain.Account),
		locks:    make(map[uuid.UUID]*sync.Mutex),
		payouts:  make(map[uuid.UUID]*domain.Payout),
	}
	for _, account := range accounts {
		repo.accounts[account.ID] = account
	}
	return repo
}

func (m *memLedgerRepo) lockFor(accountID uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	return lock
}

func (m *memLedgerRepo) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	lock := m.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *memLedgerRepo) CreditAccount(ctx context.Context, accountID uuid.UUID, amount int64, kind, source string, meta domain.EntryMeta) (*store.BalanceMutation, error) {
	lock := m.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if account.Frozen {
		return nil, store.ErrAccountFrozen
	}
	account.Balance += amount
	account.TotalEarned += amount
	return m.appendEntry(accountID, amount, kind, source, account.Balance), nil
}

func (m *memLedgerRepo) DebitAccount(ctx context.Context, accountID uuid.UUID, amount int64, kind, source string, meta domain.EntryMeta) (*store.BalanceMutation, error) {
	lock := m.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if account.Frozen {
		return nil, store.ErrAccountFrozen
	}
	if account.Balance < amount {
		return nil, store.ErrInsufficientBalance
	}
	account.Balance -= amount
	return m.appendEntry(accountID, -amount, kind, source, account.Balance), nil
}

func (m *memLedgerRepo) CreatePayoutWithDebit(ctx context.Context, payout *domain.Payout) error {
	lock := m.lockFor(payout.AccountID)
	lock.Lock()
	defer lock.Unlock()

	account, ok := m.accounts[payout.AccountID]
	if !ok {
		return store.ErrAccountNotFound
	}
	if account.Frozen {
		return store.ErrAccountFrozen
	}
	m.mu.Lock()
	for _, existing := range m.payouts {
		if existing.AccountID == payout.AccountID &&
			(existing.Status == domain.PayoutStatusPending || existing.Status == domain.PayoutStatusProcessing) {
			m.mu.Unlock()
			return store.ErrPayoutConflict
		}
	}
	m.mu.Unlock()
	if account.Balance < payout.CoinsDeducted {
		return store.ErrInsufficientBalance
	}

	account.Balance -= payout.CoinsDeducted
	m.appendEntry(payout.AccountID, -payout.CoinsDeducted, domain.EntryKindSpent, domain.SourcePayout, account.Balance)

	copied := *payout
	copied.RequestedAt = time.Now().UTC()
	m.mu.Lock()
	m.payouts[copied.ID] = &copied
	m.mu.Unlock()
	return nil
}

func (m *memLedgerRepo) FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[payoutID]
	if !ok {
		return nil, store.ErrPayoutNotFound
	}
	copied := *payout
	return &copied, nil
}

// appendEntry must be called with the account's lock held.
func (m *memLedgerRepo) appendEntry(accountID uuid.UUID, amount int64, kind, source string, balanceAfter int64) *store.BalanceMutation {
	entry := domain.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    accountID,
		Amount:       amount,
		Kind:         kind,
		Source:       source,
		BalanceAfter: balanceAfter,
		CreatedAt:    time.Now().UTC(),
	}
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	return &store.BalanceMutation{EntryID: entry.ID, Amount: amount, NewBalance: balanceAfter}
}

func (m *memLedgerRepo) entriesFor(accountID uuid.UUID) []domain.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []domain.LedgerEntry
	for _, entry := range m.entries {
		if entry.AccountID == accountID {
			entries = append(entries, entry)
		}
	}
	return entries
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	accountID := uuid.New()
	repo := newMemLedgerRepo(&domain.Account{ID: accountID, Level: 5, Balance: 1000, TotalEarned: 1000, Active: true})
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	const attempts = 50
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.DebitAccount(context.Background(), accountID, 100, domain.EntryKindSpent, domain.SourcePayout, "load test")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientBalance):
		default:
			t.Fatalf("unexpected debit error: %v", err)
		}
	}
	if succeeded != 10 {
		t.Fatalf("1000 coins fund exactly 10 debits of 100, got %d successes", succeeded)
	}

	account, err := repo.FindAccountByID(context.Background(), accountID)
	if err != nil {
		t.Fatalf("FindAccountByID returned error: %v", err)
	}
	if account.Balance != 0 {
		t.Fatalf("expected final balance 0, got %d", account.Balance)
	}

	entries := repo.entriesFor(accountID)
	if len(entries) != 10 {
		t.Fatalf("expected one entry per successful debit, got %d", len(entries))
	}
	var sum int64
	for _, entry := range entries {
		if entry.BalanceAfter < 0 {
			t.Fatalf("balance snapshot went negative: %d", entry.BalanceAfter)
		}
		sum += entry.Amount
	}
	if 1000+sum != account.Balance {
		t.Fatalf("ledger does not conserve coins: 1000%+d != %d", sum, account.Balance)
	}
}

func TestConcurrentPayoutRequestsFundOnlyOne(t *testing.T) {
	accountID := uuid.New()
	repo := newMemLedgerRepo(&domain.Account{ID: accountID, Level: 5, Balance: 1000, TotalEarned: 1000, Active: true})
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.RequestPayout(context.Background(), accountID, domain.PayoutRequestPayload{
				AmountCents: 100,
				PayoutEmail: "player@example.com",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientBalance), errors.Is(err, store.ErrPayoutConflict):
		default:
			t.Fatalf("unexpected payout error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("1000 coins fund exactly one payout, got %d successes", succeeded)
	}
	if len(repo.payouts) != 1 {
		t.Fatalf("expected exactly one payout row, got %d", len(repo.payouts))
	}

	account, err := repo.FindAccountByID(context.Background(), accountID)
	if err != nil {
		t.Fatalf("FindAccountByID returned error: %v", err)
	}
	if account.Balance != 0 {
		t.Fatalf("expected final balance 0, got %d", account.Balance)
	}
}

func TestConcurrentMixedTrafficConservesCoins(t *testing.T) {
	accountID := uuid.New()
	repo := newMemLedgerRepo(&domain.Account{ID: accountID, Level: 5, Balance: 500, TotalEarned: 500, Active: true})
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	const workers = 20
	creditErrs := make([]error, workers)
	debitErrs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, creditErrs[i] = s.CreditAccount(context.Background(), accountID, 50, domain.EntryKindEarned, domain.SourceRewardedVideo, "ad reward")
		}(i)
		go func(i int) {
			defer wg.Done()
			_, debitErrs[i] = s.DebitAccount(context.Background(), accountID, 30, domain.EntryKindSpent, domain.SourcePayout, "cash out")
		}(i)
	}
	wg.Wait()

	var creditsOK, debitsOK int64
	for i := 0; i < workers; i++ {
		if creditErrs[i] != nil {
			t.Fatalf("unexpected credit error: %v", creditErrs[i])
		}
		creditsOK++
		switch {
		case debitErrs[i] == nil:
			debitsOK++
		case errors.Is(debitErrs[i], store.ErrInsufficientBalance):
		default:
			t.Fatalf("unexpected debit error: %v", debitErrs[i])
		}
	}

	account, err := repo.FindAccountByID(context.Background(), accountID)
	if err != nil {
		t.Fatalf("FindAccountByID returned error: %v", err)
	}
	wantBalance := 500 + 50*creditsOK - 30*debitsOK
	if account.Balance != wantBalance {
		t.Fatalf("expected balance %d after %d credits and %d debits, got %d", wantBalance, creditsOK, debitsOK, account.Balance)
	}
	if account.TotalEarned != 500+50*creditsOK {
		t.Fatalf("expected total earned %d, got %d", 500+50*creditsOK, account.TotalEarned)
	}
	for _, entry := range repo.entriesFor(accountID) {
		if entry.BalanceAfter < 0 {
			t.Fatalf("balance snapshot went negative: %d", entry.BalanceAfter)
		}
	}
}
