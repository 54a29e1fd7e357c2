/**
 * @description
 * Payout lifecycle logic: quoting, requesting, cancelling, admin processing and
 * rejection, and the gateway status poll for in-flight batches.
 *
 * Key features:
 * - Fee math is computed once at request time and stamped on the payout row;
 *   later policy changes never recompute an existing payout.
 * - A definitive gateway rejection marks the payout failed WITHOUT refunding:
 *   returning the coins is the explicit admin reject operation.
 * - An ambiguous gateway failure (timeout, transport error) leaves the payout
 *   in processing for the status poller or an operator to resolve.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/paypalclient: Typed gateway errors to tell rejection from outage.
 * - pkg/rabbitmq: Payout status event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/dropstrike/ledger-service/internal/store"
	"github.com/dropstrike/ledger-service/pkg/paypalclient"
	"github.com/dropstrike/ledger-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

// Gateway batch statuses reported by PayPal for a payout batch.
const (
	gatewayBatchSuccess   = "SUCCESS"
	gatewayBatchDenied    = "DENIED"
	gatewayBatchCancelled = "CANCELED"
)

// InsufficientBalanceError carries the coin figures behind a refused payout so
// the client can show the player exactly how far short they are.
type InsufficientBalanceError struct {
	RequiredCoins int64
	CurrentCoins  int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %d coins, have %d", e.RequiredCoins, e.CurrentCoins)
}

// Unwrap keeps errors.Is(err, store.ErrInsufficientBalance) working for
// callers that only care about the category.
func (e *InsufficientBalanceError) Unwrap() error { return store.ErrInsufficientBalance }

func (e *InsufficientBalanceError) Shortfall() int64 { return e.RequiredCoins - e.CurrentCoins }

// QuotePayout computes the fee breakdown for a requested gross USD amount
// without touching any account.
func (s *Service) QuotePayout(amountCents int64) (*domain.PayoutQuote, error) {
	if amountCents < s.policy.MinPayoutCents || amountCents > s.policy.MaxPayoutCents {
		return nil, ErrAmountOutOfRange
	}

	platformFee := int64(math.Round(float64(amountCents) * s.policy.PlatformFeeRate))
	gatewayFee := int64(math.Round(float64(amountCents) * s.policy.GatewayFeeRate))
	if gatewayFee < s.policy.GatewayFeeMinCents {
		gatewayFee = s.policy.GatewayFeeMinCents
	}
	if gatewayFee > s.policy.GatewayFeeMaxCents {
		gatewayFee = s.policy.GatewayFeeMaxCents
	}

	net := amountCents - platformFee - gatewayFee
	if net <= 0 {
		return nil, ErrAmountTooSmall
	}

	// ConversionRate is USD per coin, so rate*100 is cents per coin. Rounding up
	// means the player can never pay fewer coins than the gross amount is worth.
	coins := int64(math.Ceil(float64(amountCents) / (s.policy.ConversionRate * 100)))

	return &domain.PayoutQuote{
		AmountCents:      amountCents,
		CoinsRequired:    coins,
		PlatformFeeCents: platformFee,
		GatewayFeeCents:  gatewayFee,
		NetAmountCents:   net,
	}, nil
}

// RequestPayout creates a pending payout for the account, debiting the coin
// cost atomically with the payout row insert.
func (s *Service) RequestPayout(ctx context.Context, accountID uuid.UUID, payload domain.PayoutRequestPayload) (*domain.Payout, error) {
	quote, err := s.QuotePayout(payload.AmountCents)
	if err != nil {
		return nil, err
	}

	email := strings.TrimSpace(payload.PayoutEmail)
	if email == "" {
		account, err := s.repo.FindAccountByID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if account.PayoutEmail != nil {
			email = *account.PayoutEmail
		}
	}
	if !payoutEmailPattern.MatchString(email) {
		return nil, ErrInvalidPayoutEmail
	}

	payout := &domain.Payout{
		ID:               uuid.New(),
		AccountID:        accountID,
		AmountCents:      quote.AmountCents,
		CoinsDeducted:    quote.CoinsRequired,
		PayoutEmail:      email,
		ConversionRate:   s.policy.ConversionRate,
		PlatformFeeCents: quote.PlatformFeeCents,
		GatewayFeeCents:  quote.GatewayFeeCents,
		NetAmountCents:   quote.NetAmountCents,
		Status:           domain.PayoutStatusPending,
	}
	if err := s.repo.CreatePayoutWithDebit(ctx, payout); err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) {
			if account, findErr := s.repo.FindAccountByID(ctx, accountID); findErr == nil {
				return nil, &InsufficientBalanceError{RequiredCoins: quote.CoinsRequired, CurrentCoins: account.Balance}
			}
		}
		return nil, err
	}

	created, err := s.repo.FindPayoutByID(ctx, payout.ID)
	if err != nil {
		return nil, err
	}
	s.publishPayoutEvent(ctx, created, "")
	return created, nil
}

// GetPayoutForAccount returns a payout only when it belongs to the account.
func (s *Service) GetPayoutForAccount(ctx context.Context, accountID uuid.UUID, payoutID uuid.UUID) (*domain.Payout, error) {
	payout, err := s.repo.FindPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.AccountID != accountID {
		return nil, store.ErrPayoutNotFound
	}
	return payout, nil
}

// GetActivePayout returns the account's pending or processing payout. Only one
// can exist at a time; no in-flight payout surfaces as store.ErrPayoutNotFound.
func (s *Service) GetActivePayout(ctx context.Context, accountID uuid.UUID) (*domain.Payout, error) {
	payout, err := s.repo.FindActivePayoutByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, store.ErrPayoutNotFound
	}
	return payout, nil
}

// ListPayouts returns the account's payout history.
func (s *Service) ListPayouts(ctx context.Context, accountID uuid.UUID, opts domain.PayoutListOptions) ([]domain.Payout, error) {
	if opts.Status != "" && !validPayoutStatus(opts.Status) {
		return nil, ErrInvalidPayoutStatus
	}
	return s.repo.ListPayoutsByAccount(ctx, accountID, opts)
}

// ListPayoutsByStatus is the admin view of the payout queue.
func (s *Service) ListPayoutsByStatus(ctx context.Context, status string, limit int) ([]domain.Payout, error) {
	if !validPayoutStatus(status) {
		return nil, ErrInvalidPayoutStatus
	}
	return s.repo.ListPayoutsByStatus(ctx, status, limit)
}

// CancelPayout lets the requesting player withdraw a payout that has not been
// picked up for processing yet. The refund is written in the same transaction
// as the status flip.
func (s *Service) CancelPayout(ctx context.Context, accountID uuid.UUID, payoutID uuid.UUID) (*domain.Payout, error) {
	payout, mutation, err := s.repo.CancelPayoutWithRefund(ctx, payoutID, accountID)
	if err != nil {
		return nil, err
	}
	s.publishEntryEvent(ctx, accountID, mutation, domain.EntryKindBonus, domain.SourcePayoutCancelled)
	s.publishPayoutEvent(ctx, payout, "cancelled by player")
	return payout, nil
}

// ProcessPayout is the admin operation that submits a pending payout to the
// gateway. Outcomes:
//   - gateway accepted the batch: the batch id is stored and the payout stays
//     processing until the gateway reports a terminal batch status
//   - gateway definitively rejected: the payout is marked failed, no refund
//   - ambiguous failure: the payout stays processing and ErrGatewayUnavailable
//     is returned so the operator knows the outcome is unknown
func (s *Service) ProcessPayout(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	payout, err := s.repo.MarkPayoutProcessing(ctx, payoutID)
	if err != nil {
		if errors.Is(err, store.ErrInvalidPayoutState) {
			// A processing payout without a batch id is a stuck submission from
			// an earlier ambiguous failure; allow the operator to retry it.
			existing, findErr := s.repo.FindPayoutByID(ctx, payoutID)
			if findErr != nil {
				return nil, findErr
			}
			if existing.Status != domain.PayoutStatusProcessing || existing.GatewayBatchID != nil {
				return nil, err
			}
			payout = existing
		} else {
			return nil, err
		}
	}

	note := fmt.Sprintf("Payout %s", payout.ID)
	batchID, err := s.gateway.SendPayout(ctx, payout.PayoutEmail, payout.NetAmountCents, note)
	if err != nil {
		var gatewayErr *paypalclient.ErrorResponse
		if errors.As(err, &gatewayErr) {
			reason := fmt.Sprintf("gateway rejected payout: %s", gatewayErr.Name)
			failed, markErr := s.repo.MarkPayoutFailed(ctx, payoutID, reason)
			if markErr != nil {
				return nil, markErr
			}
			log.Printf("level=warn component=payouts msg=\"gateway rejected payout\" payout_id=%s gateway_error=%s", payoutID, gatewayErr.Name)
			s.publishPayoutEvent(ctx, failed, reason)
			return failed, nil
		}
		log.Printf("level=error component=payouts msg=\"gateway submission outcome unknown; payout left processing\" payout_id=%s err=%v", payoutID, err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	updated, err := s.repo.SetPayoutGatewayBatch(ctx, payoutID, batchID)
	if err != nil {
		// The batch was submitted; losing the reference is an operator problem,
		// not a reason to resubmit.
		log.Printf("level=error component=payouts msg=\"failed to store gateway batch id\" payout_id=%s batch_id=%s err=%v", payoutID, batchID, err)
		return nil, err
	}
	s.publishPayoutEvent(ctx, updated, "")

	return s.settlePayoutFromGateway(ctx, updated, batchID)
}

// RejectPayout is the admin operation that declines a pending or processing
// payout and returns the coins, both in one transaction.
func (s *Service) RejectPayout(ctx context.Context, payoutID uuid.UUID, payload domain.RejectPayoutPayload) (*domain.Payout, error) {
	reason := strings.TrimSpace(payload.Reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	payout, mutation, err := s.repo.RejectPayoutWithRefund(ctx, payoutID, reason, payload.AdminNotes)
	if err != nil {
		return nil, err
	}
	s.publishEntryEvent(ctx, payout.AccountID, mutation, domain.EntryKindBonus, domain.SourcePayoutRejected)
	s.publishPayoutEvent(ctx, payout, reason)
	return payout, nil
}

// PollProcessingPayouts checks the gateway batch status of every in-flight
// payout and settles the ones the gateway has finished with. Run on a schedule.
func (s *Service) PollProcessingPayouts(ctx context.Context) error {
	payouts, err := s.repo.ListPayoutsByStatus(ctx, domain.PayoutStatusProcessing, 200)
	if err != nil {
		return fmt.Errorf("failed to list processing payouts: %w", err)
	}

	for i := range payouts {
		payout := &payouts[i]
		if payout.GatewayBatchID == nil {
			log.Printf("level=warn component=payouts msg=\"processing payout has no gateway batch; needs operator attention\" payout_id=%s", payout.ID)
			continue
		}
		if _, err := s.settlePayoutFromGateway(ctx, payout, *payout.GatewayBatchID); err != nil {
			log.Printf("level=warn component=payouts msg=\"gateway status poll failed\" payout_id=%s err=%v", payout.ID, err)
		}
	}
	return nil
}

// settlePayoutFromGateway reads the batch status and applies the terminal
// transition it implies. Non-terminal statuses leave the payout processing.
func (s *Service) settlePayoutFromGateway(ctx context.Context, payout *domain.Payout, batchID string) (*domain.Payout, error) {
	status, err := s.gateway.GetPayoutStatus(ctx, batchID)
	if err != nil {
		return payout, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	switch status {
	case gatewayBatchSuccess:
		completed, err := s.repo.MarkPayoutCompleted(ctx, payout.ID, batchID)
		if err != nil {
			return nil, err
		}
		s.publishPayoutEvent(ctx, completed, "")
		return completed, nil
	case gatewayBatchDenied, gatewayBatchCancelled:
		reason := fmt.Sprintf("gateway batch %s", strings.ToLower(status))
		failed, err := s.repo.MarkPayoutFailed(ctx, payout.ID, reason)
		if err != nil {
			return nil, err
		}
		log.Printf("level=warn component=payouts msg=\"gateway reported terminal batch failure\" payout_id=%s batch_status=%s", payout.ID, status)
		s.publishPayoutEvent(ctx, failed, reason)
		return failed, nil
	default:
		return payout, nil
	}
}

func validPayoutStatus(status string) bool {
	switch status {
	case domain.PayoutStatusPending, domain.PayoutStatusProcessing,
		domain.PayoutStatusCompleted, domain.PayoutStatusFailed, domain.PayoutStatusCancelled:
		return true
	}
	return false
}

// publishPayoutEvent publishes a payout status event. Best effort: the status
// transition has already committed.
func (s *Service) publishPayoutEvent(ctx context.Context, payout *domain.Payout, reason string) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.PayoutStatusEvent{
		PayoutID:       payout.ID,
		AccountID:      payout.AccountID,
		Status:         payout.Status,
		AmountCents:    payout.AmountCents,
		NetAmountCents: payout.NetAmountCents,
		CoinsDeducted:  payout.CoinsDeducted,
		Reason:         reason,
		Timestamp:      s.now().UTC(),
	}
	routingKey := fmt.Sprintf("payout.status.%s", payout.Status)
	if err := s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=payouts msg=\"payout event publish failed\" payout_id=%s err=%v", payout.ID, err)
	}
}
