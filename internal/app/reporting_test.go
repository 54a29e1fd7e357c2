package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/dropstrike/ledger-service/internal/store"
)

type reportingRepoStub struct {
	store.Repository

	allTimeCalled bool
	windowFrom    time.Time
	windowTo      time.Time
	windowLimit   int
}

func (s *reportingRepoStub) GetLeaderboardAllTime(ctx context.Context, limit int, country string) ([]domain.LeaderboardEntry, error) {
	s.allTimeCalled = true
	s.windowLimit = limit
	return nil, nil
}

func (s *reportingRepoStub) GetLeaderboardWindow(ctx context.Context, from, to time.Time, limit int, country string) ([]domain.LeaderboardEntry, error) {
	s.windowFrom = from
	s.windowTo = to
	s.windowLimit = limit
	return nil, nil
}

func TestGetLeaderboardWindows(t *testing.T) {
	// A Wednesday mid-month, so the daily/weekly/monthly starts all differ.
	now := time.Date(2025, time.March, 12, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		timeframe string
		wantFrom  time.Time
	}{
		{TimeframeDaily, time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC)},
		{TimeframeWeekly, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)},
		{TimeframeMonthly, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range tests {
		t.Run(tc.timeframe, func(t *testing.T) {
			repo := &reportingRepoStub{}
			s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)
			s.now = func() time.Time { return now }

			if _, err := s.GetLeaderboard(context.Background(), tc.timeframe, 10, ""); err != nil {
				t.Fatalf("GetLeaderboard returned error: %v", err)
			}
			if !repo.windowFrom.Equal(tc.wantFrom) {
				t.Fatalf("expected window start %v, got %v", tc.wantFrom, repo.windowFrom)
			}
			if !repo.windowTo.Equal(now) {
				t.Fatalf("expected window end %v, got %v", now, repo.windowTo)
			}
		})
	}
}

func TestGetLeaderboardWeeklyStartsMondayFromSunday(t *testing.T) {
	// Sunday belongs to the week that started the previous Monday.
	now := time.Date(2025, time.March, 16, 9, 0, 0, 0, time.UTC)
	repo := &reportingRepoStub{}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)
	s.now = func() time.Time { return now }

	if _, err := s.GetLeaderboard(context.Background(), TimeframeWeekly, 10, ""); err != nil {
		t.Fatalf("GetLeaderboard returned error: %v", err)
	}
	wantFrom := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	if !repo.windowFrom.Equal(wantFrom) {
		t.Fatalf("expected week start %v, got %v", wantFrom, repo.windowFrom)
	}
}

func TestGetLeaderboardAllTimeAndLimitClamp(t *testing.T) {
	repo := &reportingRepoStub{}
	s := NewService(repo, &gatewayStub{}, nil, testPayoutPolicy(), 0)

	if _, err := s.GetLeaderboard(context.Background(), TimeframeAllTime, 5000, ""); err != nil {
		t.Fatalf("GetLeaderboard returned error: %v", err)
	}
	if !repo.allTimeCalled {
		t.Fatal("expected the all-time board")
	}
	if repo.windowLimit != 100 {
		t.Fatalf("expected limit clamped to 100, got %d", repo.windowLimit)
	}

	if _, err := s.GetLeaderboard(context.Background(), "fortnightly", 10, ""); !errors.Is(err, ErrInvalidTimeframe) {
		t.Fatalf("expected ErrInvalidTimeframe, got %v", err)
	}
}
