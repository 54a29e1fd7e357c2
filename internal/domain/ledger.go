/**
 * @description
 * This file defines the core domain models for the ledger-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Coin amounts are plain int64 counts. USD amounts are stored as int64 cents
 *   to avoid floating-point inaccuracies with financial data.
 * - Ledger entries are append-only: once written they are never mutated.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry kinds. The kind classifies the direction and nature of a movement.
const (
	EntryKindEarned  = "earned"
	EntryKindSpent   = "spent"
	EntryKindBonus   = "bonus"
	EntryKindPenalty = "penalty"
)

// Ledger entry sources. The source records which feature produced the movement.
const (
	SourceRewardedVideo   = "rewarded_video"
	SourceInterstitialAd  = "interstitial_ad"
	SourceBannerAd        = "banner_ad"
	SourceGameCompletion  = "game_completion"
	SourceDailyBonus      = "daily_bonus"
	SourceAchievement     = "achievement"
	SourceReferral        = "referral"
	SourcePayout          = "payout"
	SourcePayoutCancelled = "payout_cancelled"
	SourcePayoutRejected  = "payout_rejected"
	SourceAdminAdjustment = "admin_adjustment"
)

// Payout statuses.
const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
	PayoutStatusCancelled  = "cancelled"
)

// Ad types served by the client.
const (
	AdTypeRewardedVideo = "rewarded_video"
	AdTypeInterstitial  = "interstitial"
	AdTypeBanner        = "banner"
)

// ValidEntryKind reports whether kind is one of the known ledger entry kinds.
func ValidEntryKind(kind string) bool {
	switch kind {
	case EntryKindEarned, EntryKindSpent, EntryKindBonus, EntryKindPenalty:
		return true
	}
	return false
}

// ValidEntrySource reports whether source is one of the known ledger entry sources.
func ValidEntrySource(source string) bool {
	switch source {
	case SourceRewardedVideo, SourceInterstitialAd, SourceBannerAd,
		SourceGameCompletion, SourceDailyBonus, SourceAchievement, SourceReferral,
		SourcePayout, SourcePayoutCancelled, SourcePayoutRejected, SourceAdminAdjustment:
		return true
	}
	return false
}

// ValidAdType reports whether adType is one of the known ad unit types.
func ValidAdType(adType string) bool {
	switch adType {
	case AdTypeRewardedVideo, AdTypeInterstitial, AdTypeBanner:
		return true
	}
	return false
}

// Account represents a player's coin account. This struct maps directly to the
// `accounts` table in the database.
type Account struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Country      *string    `json:"country,omitempty"` // ISO 3166-1 alpha-2
	Level        int        `json:"level"`
	Balance      int64      `json:"balance"`      // spendable coins, never negative
	TotalEarned  int64      `json:"total_earned"` // lifetime earned coins, monotonically increasing
	PayoutEmail  *string    `json:"payout_email,omitempty"`
	Active       bool       `json:"active"`
	Frozen       bool       `json:"frozen"` // set when reconciliation detects a ledger mismatch
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// LedgerEntry is the immutable record of a single coin movement.
// Amount carries sign: positive for credits, negative for debits.
// BalanceAfter snapshots the account balance immediately after this entry was applied.
type LedgerEntry struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	Amount       int64     `json:"amount"`
	Kind         string    `json:"kind"`
	Source       string    `json:"source"`
	BalanceAfter int64     `json:"balance_after"`
	Description  string    `json:"description"`
	AdUnitID     *string   `json:"ad_unit_id,omitempty"`
	SessionID    *string   `json:"session_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// EntryMeta carries optional provenance attached to a ledger entry at write time.
type EntryMeta struct {
	Description string
	AdUnitID    *string
	SessionID   *string
}

// LedgerEntryFilter controls pagination and filtering for ledger history queries.
type LedgerEntryFilter struct {
	Kind   string
	Source string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// AdRewardConfig describes one ad placement: how many coins it grants and the
// policy limits around granting. Rows map to the `ad_reward_configs` table.
type AdRewardConfig struct {
	ID                 uuid.UUID `json:"id"`
	AdType             string    `json:"ad_type"`
	AdUnitID           string    `json:"ad_unit_id"` // unique
	AdUnitName         string    `json:"ad_unit_name"`
	CoinReward         int64     `json:"coin_reward"`
	IsActive           bool      `json:"is_active"`
	Description        string    `json:"description"`
	MinimumWatchTime   int       `json:"minimum_watch_time"` // seconds
	DailyLimit         int       `json:"daily_limit"`        // 0 = unlimited
	MinLevel           int       `json:"min_level"`
	CooldownMinutes    int       `json:"cooldown_minutes"`
	TotalViews         int64     `json:"total_views"`
	TotalRewardsGiven  int64     `json:"total_rewards_given"`
	TotalCoinsDistrib  int64     `json:"total_coins_distributed"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Ad eligibility failure reasons, in the order they are evaluated.
const (
	IneligibleNotFound          = "not_found"
	IneligibleLevelTooLow       = "level_too_low"
	IneligibleDailyLimitReached = "daily_limit_reached"
	IneligibleCooldownActive    = "cooldown_active"
)

// AdEligibility is the structured result of an eligibility check.
// When Eligible is false, Reason holds one of the Ineligible* constants and
// NextEligibleAt, when known, tells the client when to retry.
type AdEligibility struct {
	Eligible       bool       `json:"eligible"`
	Reason         string     `json:"reason,omitempty"`
	CoinReward     int64      `json:"coin_reward,omitempty"`
	WatchedToday   int        `json:"watched_today"`
	DailyLimit     int        `json:"daily_limit"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
}

// AdRewardGrant is returned after a successful reward grant.
type AdRewardGrant struct {
	EntryID    uuid.UUID `json:"entry_id"`
	CoinReward int64     `json:"coin_reward"`
	NewBalance int64     `json:"new_balance"`
}

// UpsertAdRewardConfigPayload is the DTO for admin create/update of an ad placement.
type UpsertAdRewardConfigPayload struct {
	AdType           string `json:"ad_type"`
	AdUnitID         string `json:"ad_unit_id"`
	AdUnitName       string `json:"ad_unit_name"`
	CoinReward       int64  `json:"coin_reward"`
	IsActive         *bool  `json:"is_active,omitempty"`
	Description      string `json:"description"`
	MinimumWatchTime int    `json:"minimum_watch_time"`
	DailyLimit       int    `json:"daily_limit"`
	MinLevel         int    `json:"min_level"`
	CooldownMinutes  int    `json:"cooldown_minutes"`
}

// GameSession tracks one play session. Completing a session with coins earned
// credits the account with a `game_completion` ledger entry.
type GameSession struct {
	ID              uuid.UUID  `json:"id"`
	AccountID       uuid.UUID  `json:"account_id"`
	Status          string     `json:"status"` // 'active', 'completed', 'abandoned'
	CoinsEarned     int64      `json:"coins_earned"`
	Score           int64      `json:"score"`
	DurationSeconds int        `json:"duration_seconds"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// CompleteGameSessionPayload is the DTO for finishing a game session.
type CompleteGameSessionPayload struct {
	CoinsEarned     int64 `json:"coins_earned"`
	Score           int64 `json:"score"`
	DurationSeconds int   `json:"duration_seconds"`
}

// AccountSummary is the balance view returned to the authenticated player.
type AccountSummary struct {
	AccountID   uuid.UUID `json:"account_id"`
	Balance     int64     `json:"balance"`
	TotalEarned int64     `json:"total_earned"`
	Level       int       `json:"level"`
	Frozen      bool      `json:"frozen"`
}

// AdjustBalancePayload is the DTO for the admin balance override. The target
// balance is absolute; the service derives the compensating entry from it.
type AdjustBalancePayload struct {
	TargetBalance int64  `json:"target_balance"`
	Reason        string `json:"reason"`
}
