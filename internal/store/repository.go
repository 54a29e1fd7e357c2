/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the ledger-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation and handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/google/uuid"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account methods
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	SetAccountFrozen(ctx context.Context, accountID uuid.UUID, frozen bool) error
	SetPayoutEmail(ctx context.Context, accountID uuid.UUID, payoutEmail string) error
	ListAccountIDs(ctx context.Context, limit int, offset int) ([]uuid.UUID, error)

	// Balance methods. Each call runs as a single transaction that locks the
	// account row, appends one ledger entry with its balance snapshot, and
	// updates the stored balance (and total_earned for credits).
	CreditAccount(ctx context.Context, accountID uuid.UUID, amount int64, kind, source string, meta domain.EntryMeta) (*BalanceMutation, error)
	DebitAccount(ctx context.Context, accountID uuid.UUID, amount int64, kind, source string, meta domain.EntryMeta) (*BalanceMutation, error)
	AdjustAccountBalance(ctx context.Context, accountID uuid.UUID, targetBalance int64, reason string) (*BalanceMutation, error)

	// Ledger entry methods
	ListLedgerEntries(ctx context.Context, accountID uuid.UUID, filter domain.LedgerEntryFilter) ([]domain.LedgerEntry, error)
	SumLedgerEntries(ctx context.Context, accountID uuid.UUID, from, to *time.Time) (int64, error)
	CountAdGrantsSince(ctx context.Context, accountID uuid.UUID, adUnitID string, since time.Time) (int, error)
	LastAdGrantAt(ctx context.Context, accountID uuid.UUID, adUnitID string) (*time.Time, error)

	// Ad reward config methods
	FindAdRewardConfigByUnitID(ctx context.Context, adUnitID string) (*domain.AdRewardConfig, error)
	ListAdRewardConfigs(ctx context.Context, adType string, activeOnly bool) ([]domain.AdRewardConfig, error)
	CreateAdRewardConfig(ctx context.Context, cfg *domain.AdRewardConfig) error
	UpdateAdRewardConfig(ctx context.Context, cfg *domain.AdRewardConfig) error
	RecordAdView(ctx context.Context, adUnitID string) error
	// GrantAdReward re-validates level, daily limit (UTC day), and cooldown inside
	// the crediting transaction. Policy violations surface as sentinel errors and
	// leave the ledger untouched.
	GrantAdReward(ctx context.Context, accountID uuid.UUID, cfg *domain.AdRewardConfig, now time.Time) (*BalanceMutation, error)

	// Payout methods
	FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error)
	FindActivePayoutByAccount(ctx context.Context, accountID uuid.UUID) (*domain.Payout, error)
	ListPayoutsByAccount(ctx context.Context, accountID uuid.UUID, opts domain.PayoutListOptions) ([]domain.Payout, error)
	ListPayoutsByStatus(ctx context.Context, status string, limit int) ([]domain.Payout, error)
	// CreatePayoutWithDebit debits the coin cost and inserts the pending payout
	// row in one transaction. On any failure no payout row exists and no coins move.
	CreatePayoutWithDebit(ctx context.Context, payout *domain.Payout) error
	MarkPayoutProcessing(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error)
	SetPayoutGatewayBatch(ctx context.Context, payoutID uuid.UUID, gatewayBatchID string) (*domain.Payout, error)
	MarkPayoutCompleted(ctx context.Context, payoutID uuid.UUID, gatewayBatchID string) (*domain.Payout, error)
	MarkPayoutFailed(ctx context.Context, payoutID uuid.UUID, failureReason string) (*domain.Payout, error)
	// CancelPayoutWithRefund and RejectPayoutWithRefund flip the payout status and
	// credit the coins back in one transaction, so a crash can never leave a
	// cancelled payout without its refund or refund one payout twice.
	CancelPayoutWithRefund(ctx context.Context, payoutID uuid.UUID, accountID uuid.UUID) (*domain.Payout, *BalanceMutation, error)
	RejectPayoutWithRefund(ctx context.Context, payoutID uuid.UUID, reason string, adminNotes string) (*domain.Payout, *BalanceMutation, error)

	// Game session methods
	CreateGameSession(ctx context.Context, session *domain.GameSession) error
	FindGameSessionByID(ctx context.Context, sessionID uuid.UUID, accountID uuid.UUID) (*domain.GameSession, error)
	CompleteGameSessionWithCredit(ctx context.Context, sessionID uuid.UUID, accountID uuid.UUID, payload domain.CompleteGameSessionPayload) (*domain.GameSession, *BalanceMutation, error)

	// Reconciliation methods
	ReconcileAccount(ctx context.Context, accountID uuid.UUID) (storedBalance int64, entrySum int64, err error)

	// Reporting methods
	GetDashboardStats(ctx context.Context, now time.Time) (*domain.DashboardStats, error)
	GetSourceBreakdown(ctx context.Context, from, to time.Time) ([]domain.SourceBreakdown, error)
	GetTimeBuckets(ctx context.Context, bucket string, from, to time.Time) ([]domain.TimeBucket, error)
	GetLeaderboardAllTime(ctx context.Context, limit int, country string) ([]domain.LeaderboardEntry, error)
	GetLeaderboardWindow(ctx context.Context, from, to time.Time, limit int, country string) ([]domain.LeaderboardEntry, error)
	GetCountryBreakdown(ctx context.Context, from, to time.Time) ([]domain.CountryBreakdown, error)
}

// BalanceMutation reports the outcome of one atomic balance change: the ledger
// entry that recorded it and the balance the account was left with.
type BalanceMutation struct {
	EntryID    uuid.UUID
	Amount     int64
	NewBalance int64
}
