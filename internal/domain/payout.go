/**
 * @description
 * Payout domain models and DTOs. A payout converts coins to a USD amount and
 * moves through a small state machine: pending -> processing -> completed/failed,
 * with pending -> cancelled available to the requesting player.
 *
 * @notes
 * - All USD amounts are int64 cents. The conversion rate (USD per coin) is
 *   stamped on the payout row at request time; later configuration changes
 *   never recompute an existing payout.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payout represents one cash-out request. This struct maps directly to the
// `payouts` table in the database.
type Payout struct {
	ID               uuid.UUID  `json:"id"`
	AccountID        uuid.UUID  `json:"account_id"`
	AmountCents      int64      `json:"amount_cents"` // gross requested USD
	CoinsDeducted    int64      `json:"coins_deducted"`
	PayoutEmail      string     `json:"payout_email"`
	ConversionRate   float64    `json:"conversion_rate"` // USD per coin at request time
	PlatformFeeCents int64      `json:"platform_fee_cents"`
	GatewayFeeCents  int64      `json:"gateway_fee_cents"`
	NetAmountCents   int64      `json:"net_amount_cents"`
	Status           string     `json:"status"`
	GatewayBatchID   *string    `json:"gateway_batch_id,omitempty"`
	FailureReason    *string    `json:"failure_reason,omitempty"`
	AdminNotes       *string    `json:"admin_notes,omitempty"`
	RequestedAt      time.Time  `json:"requested_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// PayoutRequestPayload is the DTO for a player requesting a payout.
type PayoutRequestPayload struct {
	AmountCents int64  `json:"amount_cents"`
	PayoutEmail string `json:"payout_email"`
}

// PayoutQuote is the fee breakdown computed for a requested gross amount.
type PayoutQuote struct {
	AmountCents      int64 `json:"amount_cents"`
	CoinsRequired    int64 `json:"coins_required"`
	PlatformFeeCents int64 `json:"platform_fee_cents"`
	GatewayFeeCents  int64 `json:"gateway_fee_cents"`
	NetAmountCents   int64 `json:"net_amount_cents"`
}

// PayoutListOptions controls pagination and status filtering for payout history.
type PayoutListOptions struct {
	Status string
	Limit  int
	Offset int
}

// RejectPayoutPayload is the DTO for the admin reject operation.
type RejectPayoutPayload struct {
	Reason     string `json:"reason"`
	AdminNotes string `json:"admin_notes,omitempty"`
}

// PayoutPolicy is the payout configuration snapshot exposed to clients so they
// can show conversion math before a request is made.
type PayoutPolicy struct {
	ConversionRate     float64 `json:"conversion_rate"` // USD per coin
	PlatformFeeRate    float64 `json:"platform_fee_rate"`
	GatewayFeeRate     float64 `json:"gateway_fee_rate"`
	GatewayFeeMinCents int64   `json:"gateway_fee_min_cents"`
	GatewayFeeMaxCents int64   `json:"gateway_fee_max_cents"`
	MinPayoutCents     int64   `json:"min_payout_cents"`
	MaxPayoutCents     int64   `json:"max_payout_cents"`
}
