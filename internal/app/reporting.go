/**
 * @description
 * Read-only reporting use cases: the admin dashboard, coin analytics, and the
 * player leaderboard. Timeframes are resolved to UTC windows here so every
 * caller sees the same day/week/month boundaries.
 */

package app

import (
	"context"
	"errors"
	"time"

	"github.com/dropstrike/ledger-service/internal/domain"
)

// Leaderboard timeframes.
const (
	TimeframeDaily   = "daily"
	TimeframeWeekly  = "weekly"
	TimeframeMonthly = "monthly"
	TimeframeAllTime = "all_time"
)

var ErrInvalidTimeframe = errors.New("unknown timeframe")

// GetDashboardStats returns the admin dashboard headline numbers.
func (s *Service) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	return s.repo.GetDashboardStats(ctx, s.now().UTC())
}

// GetSourceBreakdown aggregates credited coins per ledger source over the
// trailing number of days.
func (s *Service) GetSourceBreakdown(ctx context.Context, days int) ([]domain.SourceBreakdown, error) {
	from, to := s.trailingWindow(days)
	return s.repo.GetSourceBreakdown(ctx, from, to)
}

// GetCoinsOverTime returns a credited-coins time series bucketed by day, week,
// or month over the trailing number of days.
func (s *Service) GetCoinsOverTime(ctx context.Context, bucket string, days int) ([]domain.TimeBucket, error) {
	switch bucket {
	case "day", "week", "month":
	default:
		return nil, ErrInvalidTimeframe
	}
	from, to := s.trailingWindow(days)
	return s.repo.GetTimeBuckets(ctx, bucket, from, to)
}

// GetCountryBreakdown aggregates accounts and earned coins per country over
// the trailing number of days.
func (s *Service) GetCountryBreakdown(ctx context.Context, days int) ([]domain.CountryBreakdown, error) {
	from, to := s.trailingWindow(days)
	return s.repo.GetCountryBreakdown(ctx, from, to)
}

// GetLeaderboard returns the top earners for a timeframe, optionally filtered
// by country. The all-time board ranks by lifetime earned coins; windowed
// boards rank by coins credited inside the window.
func (s *Service) GetLeaderboard(ctx context.Context, timeframe string, limit int, country string) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	now := s.now().UTC()
	switch timeframe {
	case TimeframeAllTime:
		return s.repo.GetLeaderboardAllTime(ctx, limit, country)
	case TimeframeDaily:
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return s.repo.GetLeaderboardWindow(ctx, from, now, limit, country)
	case TimeframeWeekly:
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		// ISO week: Monday is day one.
		weekday := int(startOfDay.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		from := startOfDay.AddDate(0, 0, -(weekday - 1))
		return s.repo.GetLeaderboardWindow(ctx, from, now, limit, country)
	case TimeframeMonthly:
		from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return s.repo.GetLeaderboardWindow(ctx, from, now, limit, country)
	default:
		return nil, ErrInvalidTimeframe
	}
}

func (s *Service) trailingWindow(days int) (time.Time, time.Time) {
	if days <= 0 {
		days = 30
	}
	if days > 365 {
		days = 365
	}
	to := s.now().UTC()
	return to.AddDate(0, 0, -days), to
}
