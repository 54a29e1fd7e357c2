/**
 * @description
 * PostgreSQL implementation of the payout portion of the `Repository` interface.
 * The payout lifecycle ties ledger debits and refunds to status transitions:
 * the coin debit and the pending payout row are written in one transaction, and
 * every refund is written in the same transaction as the status flip that
 * triggers it. Status guards are expressed in the UPDATE predicates, so a stale
 * caller gets zero rows affected rather than a double transition.
 */

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const payoutColumns = `id, account_id, amount_cents, coins_deducted, payout_email, conversion_rate,
	platform_fee_cents, gateway_fee_cents, net_amount_cents, status, gateway_batch_id,
	failure_reason, admin_notes, requested_at, processed_at, completed_at`

func scanPayout(row pgx.Row) (*domain.Payout, error) {
	var p domain.Payout
	err := row.Scan(
		&p.ID, &p.AccountID, &p.AmountCents, &p.CoinsDeducted, &p.PayoutEmail, &p.ConversionRate,
		&p.PlatformFeeCents, &p.GatewayFeeCents, &p.NetAmountCents, &p.Status, &p.GatewayBatchID,
		&p.FailureReason, &p.AdminNotes, &p.RequestedAt, &p.ProcessedAt, &p.CompletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindPayoutByID retrieves a payout by its unique ID.
func (r *PostgresRepository) FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`
	return scanPayout(r.db.QueryRow(ctx, query, payoutID))
}

// FindActivePayoutByAccount returns the account's pending or processing payout, if any.
func (r *PostgresRepository) FindActivePayoutByAccount(ctx context.Context, accountID uuid.UUID) (*domain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE account_id = $1 AND status IN ('pending', 'processing') LIMIT 1`
	payout, err := scanPayout(r.db.QueryRow(ctx, query, accountID))
	if err == ErrPayoutNotFound {
		return nil, nil
	}
	return payout, err
}

// ListPayoutsByAccount retrieves an account's payout history, newest first.
func (r *PostgresRepository) ListPayoutsByAccount(ctx context.Context, accountID uuid.UUID, opts domain.PayoutListOptions) ([]domain.Payout, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE account_id = $1`
	args := []interface{}{accountID}
	argPos := 2
	if status := strings.TrimSpace(strings.ToLower(opts.Status)); status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, status)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY requested_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayoutRows(rows)
}

// ListPayoutsByStatus retrieves payouts in a given status across all accounts,
// oldest first so the admin queue and the status poller work through backlog in order.
func (r *PostgresRepository) ListPayoutsByStatus(ctx context.Context, status string, limit int) ([]domain.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE status = $1 ORDER BY requested_at ASC LIMIT $2`
	rows, err := r.db.Query(ctx, query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayoutRows(rows)
}

func scanPayoutRows(rows pgx.Rows) ([]domain.Payout, error) {
	var payouts []domain.Payout
	for rows.Next() {
		var p domain.Payout
		err := rows.Scan(
			&p.ID, &p.AccountID, &p.AmountCents, &p.CoinsDeducted, &p.PayoutEmail, &p.ConversionRate,
			&p.PlatformFeeCents, &p.GatewayFeeCents, &p.NetAmountCents, &p.Status, &p.GatewayBatchID,
			&p.FailureReason, &p.AdminNotes, &p.RequestedAt, &p.ProcessedAt, &p.CompletedAt,
		)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// CreatePayoutWithDebit debits the coin cost and inserts the pending payout row
// in one transaction. The account row lock also serializes the single-active-payout
// check, so two concurrent requests cannot both pass it.
func (r *PostgresRepository) CreatePayoutWithDebit(ctx context.Context, payout *domain.Payout) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	balance, frozen, err := lockAccountTx(ctx, tx, payout.AccountID)
	if err != nil {
		return err
	}
	if frozen {
		return ErrAccountFrozen
	}

	var hasActive bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payouts WHERE account_id = $1 AND status IN ('pending', 'processing'))`, payout.AccountID).Scan(&hasActive)
	if err != nil {
		return err
	}
	if hasActive {
		return ErrPayoutConflict
	}

	if balance < payout.CoinsDeducted {
		return ErrInsufficientBalance
	}

	newBalance := balance - payout.CoinsDeducted
	description := fmt.Sprintf("Payout request %s", payout.ID)
	if _, err := appendEntryTx(ctx, tx, payout.AccountID, -payout.CoinsDeducted, domain.EntryKindSpent, domain.SourcePayout, newBalance, domain.EntryMeta{Description: description}); err != nil {
		return err
	}

	insert := `
		INSERT INTO payouts (
			id, account_id, amount_cents, coins_deducted, payout_email, conversion_rate,
			platform_fee_cents, gateway_fee_cents, net_amount_cents, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = tx.Exec(ctx, insert,
		payout.ID,
		payout.AccountID,
		payout.AmountCents,
		payout.CoinsDeducted,
		payout.PayoutEmail,
		payout.ConversionRate,
		payout.PlatformFeeCents,
		payout.GatewayFeeCents,
		payout.NetAmountCents,
		domain.PayoutStatusPending,
	)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			// Partial unique index on active payouts caught a racing insert.
			return ErrPayoutConflict
		}
		return err
	}

	return tx.Commit(ctx)
}

// MarkPayoutProcessing transitions a pending payout to processing.
func (r *PostgresRepository) MarkPayoutProcessing(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	query := `
		UPDATE payouts
		SET status = 'processing', processed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + payoutColumns
	payout, err := scanPayout(r.db.QueryRow(ctx, query, payoutID))
	if err == ErrPayoutNotFound {
		return nil, r.classifyPayoutStateError(ctx, payoutID)
	}
	return payout, err
}

// SetPayoutGatewayBatch records the gateway batch reference on a processing
// payout once the gateway has accepted the submission.
func (r *PostgresRepository) SetPayoutGatewayBatch(ctx context.Context, payoutID uuid.UUID, gatewayBatchID string) (*domain.Payout, error) {
	query := `
		UPDATE payouts
		SET gateway_batch_id = $2
		WHERE id = $1 AND status = 'processing'
		RETURNING ` + payoutColumns
	payout, err := scanPayout(r.db.QueryRow(ctx, query, payoutID, gatewayBatchID))
	if err == ErrPayoutNotFound {
		return nil, r.classifyPayoutStateError(ctx, payoutID)
	}
	return payout, err
}

// MarkPayoutCompleted transitions a processing payout to completed with its
// gateway batch reference. Repeating the call for the same batch reference is a
// no-op success, so gateway status replays stay idempotent.
func (r *PostgresRepository) MarkPayoutCompleted(ctx context.Context, payoutID uuid.UUID, gatewayBatchID string) (*domain.Payout, error) {
	query := `
		UPDATE payouts
		SET status = 'completed', gateway_batch_id = $2, completed_at = NOW()
		WHERE id = $1 AND status = 'processing'
		RETURNING ` + payoutColumns
	payout, err := scanPayout(r.db.QueryRow(ctx, query, payoutID, gatewayBatchID))
	if err != ErrPayoutNotFound {
		return payout, err
	}

	existing, findErr := r.FindPayoutByID(ctx, payoutID)
	if findErr != nil {
		return nil, findErr
	}
	if existing.Status == domain.PayoutStatusCompleted && existing.GatewayBatchID != nil && *existing.GatewayBatchID == gatewayBatchID {
		return existing, nil
	}
	return nil, ErrInvalidPayoutState
}

// MarkPayoutFailed transitions a pending or processing payout to failed.
// No refund happens here: returning the coins is a separate, explicit operation.
func (r *PostgresRepository) MarkPayoutFailed(ctx context.Context, payoutID uuid.UUID, failureReason string) (*domain.Payout, error) {
	query := `
		UPDATE payouts
		SET status = 'failed', failure_reason = $2, processed_at = COALESCE(processed_at, NOW())
		WHERE id = $1 AND status IN ('pending', 'processing')
		RETURNING ` + payoutColumns
	payout, err := scanPayout(r.db.QueryRow(ctx, query, payoutID, failureReason))
	if err == ErrPayoutNotFound {
		return nil, r.classifyPayoutStateError(ctx, payoutID)
	}
	return payout, err
}

// CancelPayoutWithRefund flips a pending payout to cancelled and credits the
// coins back in one transaction. The status predicate makes repeat cancels fail
// with ErrInvalidPayoutState instead of refunding twice.
func (r *PostgresRepository) CancelPayoutWithRefund(ctx context.Context, payoutID uuid.UUID, accountID uuid.UUID) (*domain.Payout, *BalanceMutation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	update := `
		UPDATE payouts
		SET status = 'cancelled', processed_at = NOW()
		WHERE id = $1 AND account_id = $2 AND status = 'pending'
		RETURNING ` + payoutColumns
	payout, err := scanPayout(tx.QueryRow(ctx, update, payoutID, accountID))
	if err != nil {
		if err == ErrPayoutNotFound {
			return nil, nil, r.classifyPayoutStateError(ctx, payoutID)
		}
		return nil, nil, err
	}

	mutation, err := r.refundPayoutTx(ctx, tx, payout, domain.SourcePayoutCancelled, fmt.Sprintf("Refund for cancelled payout %s", payout.ID))
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return payout, mutation, nil
}

// RejectPayoutWithRefund flips a pending or processing payout to failed and
// credits the coins back in one transaction. This is the operator path for a
// payout the gateway explicitly rejected or that support decided to decline.
func (r *PostgresRepository) RejectPayoutWithRefund(ctx context.Context, payoutID uuid.UUID, reason string, adminNotes string) (*domain.Payout, *BalanceMutation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	var notes *string
	if trimmed := strings.TrimSpace(adminNotes); trimmed != "" {
		notes = &trimmed
	}

	update := `
		UPDATE payouts
		SET status = 'failed', failure_reason = $2, admin_notes = COALESCE($3, admin_notes), processed_at = COALESCE(processed_at, NOW())
		WHERE id = $1 AND status IN ('pending', 'processing')
		RETURNING ` + payoutColumns
	payout, err := scanPayout(tx.QueryRow(ctx, update, payoutID, reason, notes))
	if err != nil {
		if err == ErrPayoutNotFound {
			return nil, nil, r.classifyPayoutStateError(ctx, payoutID)
		}
		return nil, nil, err
	}

	mutation, err := r.refundPayoutTx(ctx, tx, payout, domain.SourcePayoutRejected, fmt.Sprintf("Refund for rejected payout %s: %s", payout.ID, reason))
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return payout, mutation, nil
}

// refundPayoutTx credits the payout's coin cost back to the account inside the
// caller's transaction.
func (r *PostgresRepository) refundPayoutTx(ctx context.Context, tx pgx.Tx, payout *domain.Payout, source string, description string) (*BalanceMutation, error) {
	balance, _, err := lockAccountTx(ctx, tx, payout.AccountID)
	if err != nil {
		return nil, err
	}

	newBalance := balance + payout.CoinsDeducted
	entryID, err := appendEntryTx(ctx, tx, payout.AccountID, payout.CoinsDeducted, domain.EntryKindBonus, source, newBalance, domain.EntryMeta{Description: description})
	if err != nil {
		return nil, err
	}
	return &BalanceMutation{EntryID: entryID, Amount: payout.CoinsDeducted, NewBalance: newBalance}, nil
}

// classifyPayoutStateError distinguishes a missing payout from one that exists
// in a state the guarded UPDATE refused to touch.
func (r *PostgresRepository) classifyPayoutStateError(ctx context.Context, payoutID uuid.UUID) error {
	if _, err := r.FindPayoutByID(ctx, payoutID); err != nil {
		return err
	}
	return ErrInvalidPayoutState
}
