/**
 * @description
 * This file contains the core business logic for the ledger-service. The `Service`
 * struct orchestrates all coin movement operations, coordinating between the
 * database repository, the payout gateway client, and the message broker.
 *
 * Key features:
 * - Implements the main use cases: ad reward grants, game session credits,
 *   payout lifecycle, and admin balance corrections.
 * - Keeps every balance change tied to exactly one ledger entry via the
 *   repository's transactional mutation methods.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/dropstrike/ledger-service/internal/store"
	"github.com/dropstrike/ledger-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

var (
	ErrInvalidAmount        = errors.New("amount must be a positive integer")
	ErrUnknownEntryKind     = errors.New("unknown or incompatible entry kind")
	ErrUnknownEntrySource   = errors.New("unknown entry source")
	ErrInvalidPayoutEmail   = errors.New("payout email address is invalid")
	ErrAmountOutOfRange     = errors.New("payout amount is outside the allowed bounds")
	ErrAmountTooSmall       = errors.New("payout amount does not cover the fees")
	ErrGatewayUnavailable   = errors.New("payout gateway did not give a definitive answer")
	ErrLedgerMismatch       = errors.New("stored balance does not match ledger entry sum")
	ErrRateLimited          = errors.New("too many reward claims; slow down")
	ErrInvalidAdType        = errors.New("unknown ad type")
	ErrInvalidAdConfig      = errors.New("ad unit configuration is invalid")
	ErrReasonRequired       = errors.New("a reason is required for this operation")
	ErrNegativeTarget       = errors.New("target balance must not be negative")
	ErrInvalidSessionReward = errors.New("session coin reward is out of range")
	ErrInvalidPayoutStatus  = errors.New("unknown payout status")
)

// PayoutGateway is the narrow surface the service needs from the external payout
// provider. A definitive rejection comes back as an error value; a transport
// failure or timeout is ambiguous and must not be treated as a rejection.
type PayoutGateway interface {
	SendPayout(ctx context.Context, receiverEmail string, amountCents int64, note string) (string, error)
	GetPayoutStatus(ctx context.Context, batchID string) (string, error)
}

// AdClaimLimiter throttles reward claims per account and ad unit, so a
// scripted client cannot fire watch callbacks faster than ads can play.
type AdClaimLimiter interface {
	ConsumeAdClaim(ctx context.Context, accountID uuid.UUID, adUnitID string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the coin ledger.
type Service struct {
	repo          store.Repository
	gateway       PayoutGateway
	eventProducer rabbitmq.Publisher
	policy        domain.PayoutPolicy

	adClaimLimiter        AdClaimLimiter
	adWatchLimitPerMinute int
	maxSessionCoins       int64

	now func() time.Time
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, gateway PayoutGateway, producer rabbitmq.Publisher, policy domain.PayoutPolicy, maxSessionCoins int64) *Service {
	if maxSessionCoins <= 0 {
		maxSessionCoins = 10000
	}
	return &Service{
		repo:            repo,
		gateway:         gateway,
		eventProducer:   producer,
		policy:          policy,
		maxSessionCoins: maxSessionCoins,
		now:             time.Now,
	}
}

// SetAdClaimLimiter wires the distributed reward-claim rate limiter.
func (s *Service) SetAdClaimLimiter(limiter AdClaimLimiter, adWatchLimitPerMinute int) {
	s.adClaimLimiter = limiter
	s.adWatchLimitPerMinute = adWatchLimitPerMinute
}

// PayoutPolicy returns the active payout configuration snapshot.
func (s *Service) PayoutPolicy() domain.PayoutPolicy {
	return s.policy
}

// GetAccountSummary returns the authenticated player's balance view.
func (s *Service) GetAccountSummary(ctx context.Context, accountID uuid.UUID) (*domain.AccountSummary, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.AccountSummary{
		AccountID:   account.ID,
		Balance:     account.Balance,
		TotalEarned: account.TotalEarned,
		Level:       account.Level,
		Frozen:      account.Frozen,
	}, nil
}

// ListLedgerHistory returns a page of an account's ledger entries.
func (s *Service) ListLedgerHistory(ctx context.Context, accountID uuid.UUID, filter domain.LedgerEntryFilter) ([]domain.LedgerEntry, error) {
	if filter.Kind != "" && !domain.ValidEntryKind(filter.Kind) {
		return nil, ErrUnknownEntryKind
	}
	if filter.Source != "" && !domain.ValidEntrySource(filter.Source) {
		return nil, ErrUnknownEntrySource
	}
	return s.repo.ListLedgerEntries(ctx, accountID, filter)
}

// SumLedgerWindow returns the account's signed net coin movement over an
// optional [from, to) window. Unbounded, it reproduces the current balance for
// a consistent ledger.
func (s *Service) SumLedgerWindow(ctx context.Context, accountID uuid.UUID, from, to *time.Time) (int64, error) {
	if _, err := s.repo.FindAccountByID(ctx, accountID); err != nil {
		return 0, err
	}
	return s.repo.SumLedgerEntries(ctx, accountID, from, to)
}

// CreditAccount applies a validated credit (kinds 'earned' or 'bonus') and
// publishes the resulting ledger event.
func (s *Service) CreditAccount(ctx context.Context, accountID uuid.UUID, amount int64, kind, source, description string) (*store.BalanceMutation, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if kind != domain.EntryKindEarned && kind != domain.EntryKindBonus {
		return nil, ErrUnknownEntryKind
	}
	if !domain.ValidEntrySource(source) {
		return nil, ErrUnknownEntrySource
	}

	mutation, err := s.repo.CreditAccount(ctx, accountID, amount, kind, source, domain.EntryMeta{Description: description})
	if err != nil {
		return nil, err
	}
	s.publishEntryEvent(ctx, accountID, mutation, kind, source)
	return mutation, nil
}

// DebitAccount applies a validated debit (kinds 'spent' or 'penalty') and
// publishes the resulting ledger event. Insufficient balance aborts without
// writing anything.
func (s *Service) DebitAccount(ctx context.Context, accountID uuid.UUID, amount int64, kind, source, description string) (*store.BalanceMutation, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if kind != domain.EntryKindSpent && kind != domain.EntryKindPenalty {
		return nil, ErrUnknownEntryKind
	}
	if !domain.ValidEntrySource(source) {
		return nil, ErrUnknownEntrySource
	}

	mutation, err := s.repo.DebitAccount(ctx, accountID, amount, kind, source, domain.EntryMeta{Description: description})
	if err != nil {
		return nil, err
	}
	s.publishEntryEvent(ctx, accountID, mutation, kind, source)
	return mutation, nil
}

// AdjustBalance is the admin balance override: it moves the account to an
// absolute target balance by writing one compensating admin_adjustment entry.
func (s *Service) AdjustBalance(ctx context.Context, accountID uuid.UUID, payload domain.AdjustBalancePayload) (*store.BalanceMutation, error) {
	if payload.TargetBalance < 0 {
		return nil, ErrNegativeTarget
	}
	if strings.TrimSpace(payload.Reason) == "" {
		return nil, ErrReasonRequired
	}

	mutation, err := s.repo.AdjustAccountBalance(ctx, accountID, payload.TargetBalance, payload.Reason)
	if err != nil {
		return nil, err
	}
	if mutation.Amount != 0 {
		kind := domain.EntryKindBonus
		if mutation.Amount < 0 {
			kind = domain.EntryKindPenalty
		}
		log.Printf("level=warn component=ledger msg=\"admin balance adjustment applied\" account_id=%s diff=%d new_balance=%d reason=%q",
			accountID, mutation.Amount, mutation.NewBalance, payload.Reason)
		s.publishEntryEvent(ctx, accountID, mutation, kind, domain.SourceAdminAdjustment)
	}
	return mutation, nil
}

var payoutEmailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// UpdatePayoutEmail validates and stores the account's payout destination address.
func (s *Service) UpdatePayoutEmail(ctx context.Context, accountID uuid.UUID, payoutEmail string) error {
	trimmed := strings.TrimSpace(payoutEmail)
	if !payoutEmailPattern.MatchString(trimmed) {
		return ErrInvalidPayoutEmail
	}
	return s.repo.SetPayoutEmail(ctx, accountID, trimmed)
}

// StartGameSession opens a new active play session for the account.
func (s *Service) StartGameSession(ctx context.Context, accountID uuid.UUID) (*domain.GameSession, error) {
	if _, err := s.repo.FindAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	session := &domain.GameSession{
		ID:        uuid.New(),
		AccountID: accountID,
		Status:    "active",
		StartedAt: s.now().UTC(),
	}
	if err := s.repo.CreateGameSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// CompleteGameSession finishes an active session and credits its coins. The
// session flip and the credit happen in one repository transaction, so a
// completed session always has its game_completion entry.
func (s *Service) CompleteGameSession(ctx context.Context, accountID uuid.UUID, sessionID uuid.UUID, payload domain.CompleteGameSessionPayload) (*domain.GameSession, *store.BalanceMutation, error) {
	if payload.CoinsEarned < 0 || payload.CoinsEarned > s.maxSessionCoins {
		return nil, nil, ErrInvalidSessionReward
	}

	session, mutation, err := s.repo.CompleteGameSessionWithCredit(ctx, sessionID, accountID, payload)
	if err != nil {
		return nil, nil, err
	}
	if mutation != nil {
		s.publishEntryEvent(ctx, accountID, mutation, domain.EntryKindEarned, domain.SourceGameCompletion)
	}
	return session, mutation, nil
}

// publishEntryEvent publishes a ledger entry event. Publishing is best effort;
// the ledger write has already committed.
func (s *Service) publishEntryEvent(ctx context.Context, accountID uuid.UUID, mutation *store.BalanceMutation, kind, source string) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.LedgerEntryEvent{
		EntryID:      mutation.EntryID,
		AccountID:    accountID,
		Amount:       mutation.Amount,
		Kind:         kind,
		Source:       source,
		BalanceAfter: mutation.NewBalance,
		Timestamp:    s.now().UTC(),
	}
	routingKey := fmt.Sprintf("ledger.entry.%s", source)
	if err := s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=ledger msg=\"entry event publish failed\" account_id=%s entry_id=%s err=%v", accountID, mutation.EntryID, err)
	}
}
