/**
 * @description
 * Read-only reporting queries. Everything here is a deterministic aggregation
 * over committed ledger, payout, and account rows; two identical calls over the
 * same committed data return the same result. Day/week/month boundaries are
 * computed in UTC.
 */

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dropstrike/ledger-service/internal/domain"
)

// GetDashboardStats aggregates the admin dashboard headline numbers.
func (r *PostgresRepository) GetDashboardStats(ctx context.Context, now time.Time) (*domain.DashboardStats, error) {
	utcNow := now.UTC()
	startOfDay := time.Date(utcNow.Year(), utcNow.Month(), utcNow.Day(), 0, 0, 0, 0, time.UTC)
	startOfMonth := time.Date(utcNow.Year(), utcNow.Month(), 1, 0, 0, 0, 0, time.UTC)

	query := `
		SELECT
			(SELECT COUNT(*) FROM accounts),
			(SELECT COUNT(*) FROM accounts WHERE last_active_at >= $1),
			(SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE amount > 0 AND created_at >= $1),
			(SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE amount > 0 AND created_at >= $2),
			(SELECT COALESCE(SUM(-amount), 0) FROM ledger_entries WHERE amount < 0 AND created_at >= $2),
			(SELECT COUNT(*) FROM payouts WHERE status = 'pending'),
			(SELECT COUNT(*) FROM payouts WHERE status = 'processing'),
			(SELECT COALESCE(SUM(net_amount_cents), 0) FROM payouts WHERE status = 'completed'),
			(SELECT COUNT(*) FROM accounts WHERE frozen = true)
	`
	var stats domain.DashboardStats
	err := r.db.QueryRow(ctx, query, startOfDay, startOfMonth).Scan(
		&stats.TotalAccounts,
		&stats.ActiveAccountsToday,
		&stats.CoinsDistributedToday,
		&stats.CoinsDistributedMonth,
		&stats.CoinsSpentMonth,
		&stats.PendingPayouts,
		&stats.ProcessingPayouts,
		&stats.CompletedPayoutCents,
		&stats.FrozenAccounts,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetSourceBreakdown aggregates credited coins per ledger source over a window.
func (r *PostgresRepository) GetSourceBreakdown(ctx context.Context, from, to time.Time) ([]domain.SourceBreakdown, error) {
	query := `
		SELECT source, COUNT(*), COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE amount > 0 AND created_at >= $1 AND created_at < $2
		GROUP BY source
		ORDER BY SUM(amount) DESC
	`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var breakdown []domain.SourceBreakdown
	for rows.Next() {
		var row domain.SourceBreakdown
		if err := rows.Scan(&row.Source, &row.EntryCount, &row.TotalCoins); err != nil {
			return nil, err
		}
		breakdown = append(breakdown, row)
	}
	return breakdown, rows.Err()
}

// GetTimeBuckets returns a coins-credited series bucketed by UTC day, week, or month.
func (r *PostgresRepository) GetTimeBuckets(ctx context.Context, bucket string, from, to time.Time) ([]domain.TimeBucket, error) {
	switch bucket {
	case "day", "week", "month":
	default:
		return nil, fmt.Errorf("unsupported bucket %q", bucket)
	}

	query := fmt.Sprintf(`
		SELECT date_trunc('%s', created_at AT TIME ZONE 'UTC') AS bucket_start, COUNT(*), COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE amount > 0 AND created_at >= $1 AND created_at < $2
		GROUP BY bucket_start
		ORDER BY bucket_start ASC
	`, bucket)
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []domain.TimeBucket
	for rows.Next() {
		var b domain.TimeBucket
		if err := rows.Scan(&b.BucketStart, &b.EntryCount, &b.TotalCoins); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// GetLeaderboardAllTime ranks accounts by the lifetime-earned counter.
func (r *PostgresRepository) GetLeaderboardAllTime(ctx context.Context, limit int, country string) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, name, country, level, total_earned
		FROM accounts
		WHERE active = true
	`
	args := []interface{}{}
	argPos := 1
	if country != "" {
		query += fmt.Sprintf(" AND country = $%d", argPos)
		args = append(args, country)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY total_earned DESC, created_at ASC LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	rank := 1
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.AccountID, &e.Name, &e.Country, &e.Level, &e.Coins); err != nil {
			return nil, err
		}
		e.Rank = rank
		rank++
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLeaderboardWindow ranks accounts by coins credited inside [from, to),
// computed from the ledger rather than the lifetime counter.
func (r *PostgresRepository) GetLeaderboardWindow(ctx context.Context, from, to time.Time, limit int, country string) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT a.id, a.name, a.country, a.level, COALESCE(SUM(le.amount), 0) AS coins
		FROM ledger_entries le
		JOIN accounts a ON a.id = le.account_id
		WHERE le.amount > 0 AND le.created_at >= $1 AND le.created_at < $2 AND a.active = true
	`
	args := []interface{}{from, to}
	argPos := 3
	if country != "" {
		query += fmt.Sprintf(" AND a.country = $%d", argPos)
		args = append(args, country)
		argPos++
	}
	query += fmt.Sprintf(" GROUP BY a.id, a.name, a.country, a.level ORDER BY coins DESC, a.created_at ASC LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	rank := 1
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.AccountID, &e.Name, &e.Country, &e.Level, &e.Coins); err != nil {
			return nil, err
		}
		e.Rank = rank
		rank++
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetCountryBreakdown aggregates accounts and credited coins per country over a window.
func (r *PostgresRepository) GetCountryBreakdown(ctx context.Context, from, to time.Time) ([]domain.CountryBreakdown, error) {
	query := `
		SELECT COALESCE(a.country, 'unknown'), COUNT(DISTINCT a.id), COALESCE(SUM(le.amount), 0)
		FROM accounts a
		LEFT JOIN ledger_entries le
			ON le.account_id = a.id AND le.amount > 0 AND le.created_at >= $1 AND le.created_at < $2
		GROUP BY COALESCE(a.country, 'unknown')
		ORDER BY SUM(le.amount) DESC NULLS LAST
	`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var breakdown []domain.CountryBreakdown
	for rows.Next() {
		var row domain.CountryBreakdown
		if err := rows.Scan(&row.Country, &row.AccountCount, &row.TotalCoins); err != nil {
			return nil, err
		}
		breakdown = append(breakdown, row)
	}
	return breakdown, rows.Err()
}
