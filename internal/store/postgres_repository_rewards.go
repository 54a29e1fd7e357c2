/**
 * @description
 * PostgreSQL implementation of ad reward configs, reward grants, and game
 * sessions. The grant path re-validates the daily limit and cooldown inside the
 * crediting transaction, because the read-only eligibility check a client saw
 * moments earlier proves nothing by the time the grant runs.
 */

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const adConfigColumns = `id, ad_type, ad_unit_id, ad_unit_name, coin_reward, is_active, COALESCE(description, ''),
	minimum_watch_time, daily_limit, min_level, cooldown_minutes,
	total_views, total_rewards_given, total_coins_distributed, created_at, updated_at`

func scanAdConfig(row pgx.Row) (*domain.AdRewardConfig, error) {
	var cfg domain.AdRewardConfig
	err := row.Scan(
		&cfg.ID, &cfg.AdType, &cfg.AdUnitID, &cfg.AdUnitName, &cfg.CoinReward, &cfg.IsActive, &cfg.Description,
		&cfg.MinimumWatchTime, &cfg.DailyLimit, &cfg.MinLevel, &cfg.CooldownMinutes,
		&cfg.TotalViews, &cfg.TotalRewardsGiven, &cfg.TotalCoinsDistrib, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAdUnitNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// FindAdRewardConfigByUnitID retrieves an ad placement config by its ad unit id.
func (r *PostgresRepository) FindAdRewardConfigByUnitID(ctx context.Context, adUnitID string) (*domain.AdRewardConfig, error) {
	query := `SELECT ` + adConfigColumns + ` FROM ad_reward_configs WHERE ad_unit_id = $1`
	return scanAdConfig(r.db.QueryRow(ctx, query, adUnitID))
}

// ListAdRewardConfigs retrieves ad placement configs, optionally filtered by type
// and restricted to active placements.
func (r *PostgresRepository) ListAdRewardConfigs(ctx context.Context, adType string, activeOnly bool) ([]domain.AdRewardConfig, error) {
	query := `SELECT ` + adConfigColumns + ` FROM ad_reward_configs WHERE 1=1`
	args := []interface{}{}
	argPos := 1
	if adType != "" {
		query += fmt.Sprintf(" AND ad_type = $%d", argPos)
		args = append(args, adType)
		argPos++
	}
	if activeOnly {
		query += " AND is_active = true"
	}
	query += " ORDER BY ad_type ASC, ad_unit_name ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []domain.AdRewardConfig
	for rows.Next() {
		var cfg domain.AdRewardConfig
		err := rows.Scan(
			&cfg.ID, &cfg.AdType, &cfg.AdUnitID, &cfg.AdUnitName, &cfg.CoinReward, &cfg.IsActive, &cfg.Description,
			&cfg.MinimumWatchTime, &cfg.DailyLimit, &cfg.MinLevel, &cfg.CooldownMinutes,
			&cfg.TotalViews, &cfg.TotalRewardsGiven, &cfg.TotalCoinsDistrib, &cfg.CreatedAt, &cfg.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// CreateAdRewardConfig inserts a new ad placement config.
func (r *PostgresRepository) CreateAdRewardConfig(ctx context.Context, cfg *domain.AdRewardConfig) error {
	query := `
		INSERT INTO ad_reward_configs (
			id, ad_type, ad_unit_id, ad_unit_name, coin_reward, is_active, description,
			minimum_watch_time, daily_limit, min_level, cooldown_minutes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		cfg.ID, cfg.AdType, cfg.AdUnitID, cfg.AdUnitName, cfg.CoinReward, cfg.IsActive, cfg.Description,
		cfg.MinimumWatchTime, cfg.DailyLimit, cfg.MinLevel, cfg.CooldownMinutes,
	)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return ErrAdUnitExists
		}
		return err
	}
	return nil
}

// UpdateAdRewardConfig updates the policy fields of an existing ad placement.
// Analytics counters are never written through this path.
func (r *PostgresRepository) UpdateAdRewardConfig(ctx context.Context, cfg *domain.AdRewardConfig) error {
	query := `
		UPDATE ad_reward_configs
		SET ad_type = $2, ad_unit_name = $3, coin_reward = $4, is_active = $5, description = $6,
			minimum_watch_time = $7, daily_limit = $8, min_level = $9, cooldown_minutes = $10,
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		cfg.ID, cfg.AdType, cfg.AdUnitName, cfg.CoinReward, cfg.IsActive, cfg.Description,
		cfg.MinimumWatchTime, cfg.DailyLimit, cfg.MinLevel, cfg.CooldownMinutes,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAdUnitNotFound
	}
	return nil
}

// RecordAdView bumps the impression counter for an ad unit. Views are tracked
// separately from grants; watching an ad does not imply a reward was given.
func (r *PostgresRepository) RecordAdView(ctx context.Context, adUnitID string) error {
	result, err := r.db.Exec(ctx, `UPDATE ad_reward_configs SET total_views = total_views + 1, updated_at = NOW() WHERE ad_unit_id = $1`, adUnitID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAdUnitNotFound
	}
	return nil
}

// GrantAdReward credits the configured reward and bumps the placement's grant
// counters in one transaction. Level, daily limit (UTC day), and cooldown are
// re-checked under the account row lock; a violation aborts with a sentinel
// error and leaves the ledger untouched.
func (r *PostgresRepository) GrantAdReward(ctx context.Context, accountID uuid.UUID, cfg *domain.AdRewardConfig, now time.Time) (*BalanceMutation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var balance int64
	var level int
	err = tx.QueryRow(ctx, `SELECT balance, level FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balance, &level)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if level < cfg.MinLevel {
		return nil, ErrRewardLevelTooLow
	}

	utcNow := now.UTC()
	startOfDay := time.Date(utcNow.Year(), utcNow.Month(), utcNow.Day(), 0, 0, 0, 0, time.UTC)

	if cfg.DailyLimit > 0 {
		var todayCount int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1 AND ad_unit_id = $2 AND amount > 0 AND created_at >= $3`,
			accountID, cfg.AdUnitID, startOfDay,
		).Scan(&todayCount)
		if err != nil {
			return nil, err
		}
		if todayCount >= cfg.DailyLimit {
			return nil, ErrRewardDailyLimit
		}
	}

	if cfg.CooldownMinutes > 0 {
		var lastGrant time.Time
		err = tx.QueryRow(ctx,
			`SELECT created_at FROM ledger_entries WHERE account_id = $1 AND ad_unit_id = $2 AND amount > 0 ORDER BY created_at DESC LIMIT 1`,
			accountID, cfg.AdUnitID,
		).Scan(&lastGrant)
		if err != nil && err != pgx.ErrNoRows {
			return nil, err
		}
		if err == nil && utcNow.Before(lastGrant.Add(time.Duration(cfg.CooldownMinutes)*time.Minute)) {
			return nil, ErrRewardCooldown
		}
	}

	newBalance := balance + cfg.CoinReward
	adUnitID := cfg.AdUnitID
	meta := domain.EntryMeta{
		Description: fmt.Sprintf("Reward for %s", cfg.AdUnitName),
		AdUnitID:    &adUnitID,
	}
	kind := domain.EntryKindEarned
	source := sourceForAdType(cfg.AdType)
	entryID, err := appendEntryTx(ctx, tx, accountID, cfg.CoinReward, kind, source, newBalance, meta)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE ad_reward_configs
		SET total_rewards_given = total_rewards_given + 1,
			total_coins_distributed = total_coins_distributed + $2,
			updated_at = NOW()
		WHERE id = $1
	`, cfg.ID, cfg.CoinReward)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &BalanceMutation{EntryID: entryID, Amount: cfg.CoinReward, NewBalance: newBalance}, nil
}

func sourceForAdType(adType string) string {
	switch adType {
	case domain.AdTypeInterstitial:
		return domain.SourceInterstitialAd
	case domain.AdTypeBanner:
		return domain.SourceBannerAd
	default:
		return domain.SourceRewardedVideo
	}
}

const sessionColumns = `id, account_id, status, coins_earned, score, duration_seconds, started_at, ended_at`

// CreateGameSession inserts a new active game session.
func (r *PostgresRepository) CreateGameSession(ctx context.Context, session *domain.GameSession) error {
	query := `INSERT INTO game_sessions (id, account_id, status) VALUES ($1, $2, 'active')`
	_, err := r.db.Exec(ctx, query, session.ID, session.AccountID)
	return err
}

// FindGameSessionByID retrieves a session owned by the given account.
func (r *PostgresRepository) FindGameSessionByID(ctx context.Context, sessionID uuid.UUID, accountID uuid.UUID) (*domain.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE id = $1 AND account_id = $2`
	var s domain.GameSession
	err := r.db.QueryRow(ctx, query, sessionID, accountID).Scan(
		&s.ID, &s.AccountID, &s.Status, &s.CoinsEarned, &s.Score, &s.DurationSeconds, &s.StartedAt, &s.EndedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// CompleteGameSessionWithCredit marks an active session completed and credits
// its coins in one transaction. The status predicate on the UPDATE makes a
// repeated completion fail instead of crediting twice.
func (r *PostgresRepository) CompleteGameSessionWithCredit(ctx context.Context, sessionID uuid.UUID, accountID uuid.UUID, payload domain.CompleteGameSessionPayload) (*domain.GameSession, *BalanceMutation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	update := `
		UPDATE game_sessions
		SET status = 'completed', coins_earned = $3, score = $4, duration_seconds = $5, ended_at = NOW()
		WHERE id = $1 AND account_id = $2 AND status = 'active'
		RETURNING ` + sessionColumns
	var s domain.GameSession
	err = tx.QueryRow(ctx, update, sessionID, accountID, payload.CoinsEarned, payload.Score, payload.DurationSeconds).Scan(
		&s.ID, &s.AccountID, &s.Status, &s.CoinsEarned, &s.Score, &s.DurationSeconds, &s.StartedAt, &s.EndedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			if _, findErr := r.FindGameSessionByID(ctx, sessionID, accountID); findErr != nil {
				return nil, nil, findErr
			}
			return nil, nil, ErrSessionNotActive
		}
		return nil, nil, err
	}

	var mutation *BalanceMutation
	if payload.CoinsEarned > 0 {
		balance, _, err := lockAccountTx(ctx, tx, accountID)
		if err != nil {
			return nil, nil, err
		}
		newBalance := balance + payload.CoinsEarned
		sessionRef := sessionID.String()
		meta := domain.EntryMeta{
			Description: "Game session reward",
			SessionID:   &sessionRef,
		}
		entryID, err := appendEntryTx(ctx, tx, accountID, payload.CoinsEarned, domain.EntryKindEarned, domain.SourceGameCompletion, newBalance, meta)
		if err != nil {
			return nil, nil, err
		}
		mutation = &BalanceMutation{EntryID: entryID, Amount: payload.CoinsEarned, NewBalance: newBalance}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return &s, mutation, nil
}
