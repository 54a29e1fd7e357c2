/**
 * @description
 * Read-only reporting models. These are deterministic aggregations over
 * committed ledger, payout, and account data; nothing here is materialized
 * or mutated by the reporting paths.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// DashboardStats is the admin dashboard headline view.
type DashboardStats struct {
	TotalAccounts         int64 `json:"total_accounts"`
	ActiveAccountsToday   int64 `json:"active_accounts_today"`
	CoinsDistributedToday int64 `json:"coins_distributed_today"`
	CoinsDistributedMonth int64 `json:"coins_distributed_month"`
	CoinsSpentMonth       int64 `json:"coins_spent_month"`
	PendingPayouts        int64 `json:"pending_payouts"`
	ProcessingPayouts     int64 `json:"processing_payouts"`
	CompletedPayoutCents  int64 `json:"completed_payout_cents"`
	FrozenAccounts        int64 `json:"frozen_accounts"`
}

// SourceBreakdown aggregates credited coins per ledger source over a window.
type SourceBreakdown struct {
	Source     string `json:"source"`
	EntryCount int64  `json:"entry_count"`
	TotalCoins int64  `json:"total_coins"`
}

// TimeBucket is one point in a coins-over-time series. Buckets are aligned to
// UTC day, week, or month boundaries depending on the requested timeframe.
type TimeBucket struct {
	BucketStart time.Time `json:"bucket_start"`
	EntryCount  int64     `json:"entry_count"`
	TotalCoins  int64     `json:"total_coins"`
}

// LeaderboardEntry is one row of a coin leaderboard. Rank is 1-based within
// the requested timeframe and optional country filter.
type LeaderboardEntry struct {
	Rank      int       `json:"rank"`
	AccountID uuid.UUID `json:"account_id"`
	Name      string    `json:"name"`
	Country   *string   `json:"country,omitempty"`
	Level     int       `json:"level"`
	Coins     int64     `json:"coins"`
}

// CountryBreakdown aggregates accounts and earned coins per country.
type CountryBreakdown struct {
	Country      string `json:"country"`
	AccountCount int64  `json:"account_count"`
	TotalCoins   int64  `json:"total_coins"`
}
