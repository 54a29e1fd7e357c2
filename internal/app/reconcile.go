/**
 * @description
 * Ledger reconciliation: verifies that every account's stored balance equals
 * the sum of its ledger entries, and freezes accounts where it does not. A
 * frozen account can still be read but no balance mutation will touch it until
 * an operator repairs the ledger with an explicit adjustment and unfreezes it.
 *
 * @dependencies
 * - internal/store: ReconcileAccount reads balance and entry sum under the
 *   account row lock so in-flight writes cannot fake a mismatch.
 * - pkg/rabbitmq: Freeze events for alerting.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/dropstrike/ledger-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

const reconcileBatchSize = 500

// ReconciliationReport is the outcome of checking one account.
type ReconciliationReport struct {
	AccountID     uuid.UUID `json:"account_id"`
	StoredBalance int64     `json:"stored_balance"`
	EntrySum      int64     `json:"entry_sum"`
	Consistent    bool      `json:"consistent"`
	Frozen        bool      `json:"frozen"`
}

// ReconcileAccount compares the account's stored balance against the sum of
// its ledger entries and freezes the account on a mismatch.
func (s *Service) ReconcileAccount(ctx context.Context, accountID uuid.UUID) (*ReconciliationReport, error) {
	storedBalance, entrySum, err := s.repo.ReconcileAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{
		AccountID:     accountID,
		StoredBalance: storedBalance,
		EntrySum:      entrySum,
		Consistent:    storedBalance == entrySum,
	}
	if report.Consistent {
		return report, nil
	}

	log.Printf("level=critical component=reconcile msg=\"ledger mismatch detected; freezing account\" account_id=%s stored_balance=%d entry_sum=%d",
		accountID, storedBalance, entrySum)
	if err := s.repo.SetAccountFrozen(ctx, accountID, true); err != nil {
		return nil, fmt.Errorf("failed to freeze mismatched account %s: %w", accountID, err)
	}
	report.Frozen = true

	if s.eventProducer != nil {
		event := rabbitmq.AccountFrozenEvent{
			AccountID:     accountID,
			StoredBalance: storedBalance,
			EntrySum:      entrySum,
			Timestamp:     s.now().UTC(),
		}
		if err := s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, "account.frozen", event); err != nil {
			log.Printf("level=warn component=reconcile msg=\"freeze event publish failed\" account_id=%s err=%v", accountID, err)
		}
	}
	return report, nil
}

// ReconcileAllAccounts sweeps every account in batches. Run on a schedule.
// Individual account failures are logged and skipped so one bad row cannot
// stall the sweep.
func (s *Service) ReconcileAllAccounts(ctx context.Context) (checked int, mismatched int, err error) {
	offset := 0
	for {
		ids, err := s.repo.ListAccountIDs(ctx, reconcileBatchSize, offset)
		if err != nil {
			return checked, mismatched, fmt.Errorf("failed to list accounts at offset %d: %w", offset, err)
		}
		if len(ids) == 0 {
			break
		}

		for _, accountID := range ids {
			report, err := s.ReconcileAccount(ctx, accountID)
			if err != nil {
				log.Printf("level=warn component=reconcile msg=\"account reconcile failed\" account_id=%s err=%v", accountID, err)
				continue
			}
			checked++
			if !report.Consistent {
				mismatched++
			}
		}
		offset += len(ids)
	}

	log.Printf("level=info component=reconcile msg=\"reconcile sweep finished\" checked=%d mismatched=%d", checked, mismatched)
	return checked, mismatched, nil
}

// UnfreezeAccount clears the frozen flag after an operator has repaired the
// ledger. The repair itself is the admin balance adjustment.
func (s *Service) UnfreezeAccount(ctx context.Context, accountID uuid.UUID) error {
	report, err := s.ReconcileAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !report.Consistent {
		return ErrLedgerMismatch
	}
	return s.repo.SetAccountFrozen(ctx, accountID, false)
}
