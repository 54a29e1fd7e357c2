/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface
 * for accounts and the coin ledger. It contains the balance-mutation transactions
 * that keep the append-only ledger and the stored account balance in lockstep.
 *
 * @notes
 * - Every balance change locks the account row with SELECT ... FOR UPDATE, so
 *   operations on the same account serialize while unrelated accounts never
 *   contend on a shared lock.
 * - Ledger entries are only ever inserted here; there is no update path.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountFrozen       = errors.New("account is frozen")
	ErrInsufficientBalance = errors.New("insufficient coin balance")
	ErrAdUnitNotFound      = errors.New("ad unit not found")
	ErrAdUnitExists        = errors.New("ad unit already exists")
	ErrRewardLevelTooLow   = errors.New("account level below ad unit minimum")
	ErrRewardDailyLimit    = errors.New("daily reward limit reached for ad unit")
	ErrRewardCooldown      = errors.New("reward cooldown active for ad unit")
	ErrPayoutNotFound      = errors.New("payout not found")
	ErrPayoutConflict      = errors.New("account already has an active payout")
	ErrInvalidPayoutState  = errors.New("payout is not in a valid state for this operation")
	ErrSessionNotFound     = errors.New("game session not found")
	ErrSessionNotActive    = errors.New("game session is not active")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, name, email, country, level, balance, total_earned, payout_email, active, frozen, last_active_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID, &account.Name, &account.Email, &account.Country, &account.Level,
		&account.Balance, &account.TotalEarned, &account.PayoutEmail, &account.Active,
		&account.Frozen, &account.LastActiveAt, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountByID retrieves an account from the database by its ID.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, accountID))
}

// SetAccountFrozen flips the frozen flag on an account. Frozen accounts reject debits.
func (r *PostgresRepository) SetAccountFrozen(ctx context.Context, accountID uuid.UUID, frozen bool) error {
	result, err := r.db.Exec(ctx, `UPDATE accounts SET frozen = $1, updated_at = NOW() WHERE id = $2`, frozen, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetPayoutEmail stores the destination address used for future payouts.
func (r *PostgresRepository) SetPayoutEmail(ctx context.Context, accountID uuid.UUID, payoutEmail string) error {
	result, err := r.db.Exec(ctx, `UPDATE accounts SET payout_email = $1, updated_at = NOW() WHERE id = $2`, payoutEmail, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ListAccountIDs pages through account ids in creation order, for the reconciliation sweep.
func (r *PostgresRepository) ListAccountIDs(ctx context.Context, limit int, offset int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `SELECT id FROM accounts ORDER BY created_at ASC, id ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// lockAccountTx locks the account row and returns its current balance and frozen flag.
func lockAccountTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (balance int64, frozen bool, err error) {
	err = tx.QueryRow(ctx, `SELECT balance, frozen FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balance, &frozen)
	if err == pgx.ErrNoRows {
		return 0, false, ErrAccountNotFound
	}
	return balance, frozen, err
}

// appendEntryTx inserts one ledger entry and applies its amount to the locked
// account balance. The caller owns the transaction, has already locked the
// account row, and has validated the resulting balance.
func appendEntryTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, kind, source string, balanceAfter int64, meta domain.EntryMeta) (uuid.UUID, error) {
	entryID := uuid.New()
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, account_id, amount, kind, source, balance_after, description, ad_unit_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entryID, accountID, amount, kind, source, balanceAfter, meta.Description, meta.AdUnitID, meta.SessionID)
	if err != nil {
		return uuid.Nil, err
	}

	// Credits advance the monotonic lifetime-earned counter, except payout
	// refunds, which restore previously earned coins rather than add new ones.
	bumpEarned := amount > 0 && source != domain.SourcePayoutCancelled && source != domain.SourcePayoutRejected
	if bumpEarned {
		_, err = tx.Exec(ctx, `
			UPDATE accounts
			SET balance = $1, total_earned = total_earned + $2, last_active_at = NOW(), updated_at = NOW()
			WHERE id = $3
		`, balanceAfter, amount, accountID)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE accounts
			SET balance = $1, last_active_at = NOW(), updated_at = NOW()
			WHERE id = $2
		`, balanceAfter, accountID)
	}
	if err != nil {
		return uuid.Nil, err
	}
	return entryID, nil
}

// CreditAccount atomically adds coins to an account and appends the ledger entry.
func (r *PostgresRepository) CreditAccount(ctx context.Context, accountID uuid.UUID, amount int64, kind, source string, meta domain.EntryMeta) (*BalanceMutation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	balance, _, err := lockAccountTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	newBalance := balance + amount
	entryID, err := appendEntryTx(ctx, tx, accountID, amount, kind, source, newBalance, meta)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &BalanceMutation{EntryID: entryID, Amount: amount, NewBalance: newBalance}, nil
}

// DebitAccount atomically removes coins from an account and appends the ledger entry.
// The balance is re-read under the row lock, so a debit can never drive it negative.
func (r *PostgresRepository) DebitAccount(ctx context.Context, accountID uuid.UUID, amount int64, kind, source string, meta domain.EntryMeta) (*BalanceMutation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	balance, frozen, err := lockAccountTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if frozen {
		return nil, ErrAccountFrozen
	}
	if balance < amount {
		return nil, ErrInsufficientBalance
	}

	newBalance := balance - amount
	entryID, err := appendEntryTx(ctx, tx, accountID, -amount, kind, source, newBalance, meta)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &BalanceMutation{EntryID: entryID, Amount: -amount, NewBalance: newBalance}, nil
}

// AdjustAccountBalance moves the balance to an absolute target by writing exactly
// one compensating admin_adjustment entry for the difference. A zero difference
// writes nothing.
func (r *PostgresRepository) AdjustAccountBalance(ctx context.Context, accountID uuid.UUID, targetBalance int64, reason string) (*BalanceMutation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	balance, _, err := lockAccountTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	diff := targetBalance - balance
	if diff == 0 {
		return &BalanceMutation{Amount: 0, NewBalance: balance}, tx.Commit(ctx)
	}

	kind := domain.EntryKindBonus
	if diff < 0 {
		kind = domain.EntryKindPenalty
	}
	entryID, err := appendEntryTx(ctx, tx, accountID, diff, kind, domain.SourceAdminAdjustment, targetBalance, domain.EntryMeta{Description: reason})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &BalanceMutation{EntryID: entryID, Amount: diff, NewBalance: targetBalance}, nil
}

const entryColumns = `id, account_id, amount, kind, source, balance_after, COALESCE(description, ''), ad_unit_id, session_id, created_at`

func scanEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		err := rows.Scan(
			&entry.ID, &entry.AccountID, &entry.Amount, &entry.Kind, &entry.Source,
			&entry.BalanceAfter, &entry.Description, &entry.AdUnitID, &entry.SessionID, &entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListLedgerEntries returns an account's ledger slice newest first, restartable
// via limit/offset.
func (r *PostgresRepository) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, filter domain.LedgerEntryFilter) ([]domain.LedgerEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE account_id = $1`
	args := []interface{}{accountID}
	argPos := 2

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argPos)
		args = append(args, filter.Kind)
		argPos++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(" AND source = $%d", argPos)
		args = append(args, filter.Source)
		argPos++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *filter.From)
		argPos++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argPos)
		args = append(args, *filter.To)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// SumLedgerEntries returns the signed sum of entry amounts for an account,
// optionally bounded to a [from, to) window.
func (r *PostgresRepository) SumLedgerEntries(ctx context.Context, accountID uuid.UUID, from, to *time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`
	args := []interface{}{accountID}
	argPos := 2
	if from != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *from)
		argPos++
	}
	if to != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argPos)
		args = append(args, *to)
	}

	var sum int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

// CountAdGrantsSince counts reward grants for one account and ad unit since the
// given instant. Used for the UTC-day daily limit.
func (r *PostgresRepository) CountAdGrantsSince(ctx context.Context, accountID uuid.UUID, adUnitID string, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1 AND ad_unit_id = $2 AND amount > 0 AND created_at >= $3`
	if err := r.db.QueryRow(ctx, query, accountID, adUnitID, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// LastAdGrantAt returns the time of the most recent reward grant for one account
// and ad unit, or nil when there is none. Used for the cooldown check.
func (r *PostgresRepository) LastAdGrantAt(ctx context.Context, accountID uuid.UUID, adUnitID string) (*time.Time, error) {
	var last time.Time
	query := `SELECT created_at FROM ledger_entries WHERE account_id = $1 AND ad_unit_id = $2 AND amount > 0 ORDER BY created_at DESC LIMIT 1`
	err := r.db.QueryRow(ctx, query, accountID, adUnitID).Scan(&last)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &last, nil
}

// ReconcileAccount replays the full ledger for an account and returns the stored
// balance alongside the entry sum, both read in one transaction under the row
// lock so no concurrent mutation can slip between the two reads.
func (r *PostgresRepository) ReconcileAccount(ctx context.Context, accountID uuid.UUID) (int64, int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	storedBalance, _, err := lockAccountTx(ctx, tx, accountID)
	if err != nil {
		return 0, 0, err
	}

	var entrySum int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`, accountID).Scan(&entrySum); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return storedBalance, entrySum, nil
}
