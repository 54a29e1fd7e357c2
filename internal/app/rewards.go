/**
 * @description
 * Ad-reward eligibility and grant logic. Eligibility is evaluated in a fixed
 * order so clients always surface the most actionable refusal reason, and the
 * grant path re-checks everything inside the crediting transaction so a stale
 * eligibility answer can never mint coins.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Event publishing for granted rewards.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/dropstrike/ledger-service/internal/store"
	"github.com/google/uuid"
)

// CheckAdEligibility answers whether the account may claim the reward for the
// given ad unit right now. Refusal reasons are evaluated in a fixed order:
// unit existence, account level, daily cap (UTC day), cooldown.
func (s *Service) CheckAdEligibility(ctx context.Context, accountID uuid.UUID, adUnitID string) (*domain.AdEligibility, error) {
	cfg, err := s.repo.FindAdRewardConfigByUnitID(ctx, adUnitID)
	if err != nil {
		if errors.Is(err, store.ErrAdUnitNotFound) {
			return &domain.AdEligibility{Eligible: false, Reason: domain.IneligibleNotFound}, nil
		}
		return nil, err
	}
	if !cfg.IsActive {
		return &domain.AdEligibility{Eligible: false, Reason: domain.IneligibleNotFound}, nil
	}

	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Level < cfg.MinLevel {
		return &domain.AdEligibility{
			Eligible:   false,
			Reason:     domain.IneligibleLevelTooLow,
			DailyLimit: cfg.DailyLimit,
		}, nil
	}

	now := s.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	watchedToday, err := s.repo.CountAdGrantsSince(ctx, accountID, adUnitID, startOfDay)
	if err != nil {
		return nil, err
	}
	if cfg.DailyLimit > 0 && watchedToday >= cfg.DailyLimit {
		nextDay := startOfDay.AddDate(0, 0, 1)
		return &domain.AdEligibility{
			Eligible:       false,
			Reason:         domain.IneligibleDailyLimitReached,
			WatchedToday:   watchedToday,
			DailyLimit:     cfg.DailyLimit,
			NextEligibleAt: &nextDay,
		}, nil
	}

	if cfg.CooldownMinutes > 0 {
		lastGrant, err := s.repo.LastAdGrantAt(ctx, accountID, adUnitID)
		if err != nil {
			return nil, err
		}
		if lastGrant != nil {
			cooldownEnds := lastGrant.Add(time.Duration(cfg.CooldownMinutes) * time.Minute)
			if now.Before(cooldownEnds) {
				return &domain.AdEligibility{
					Eligible:       false,
					Reason:         domain.IneligibleCooldownActive,
					WatchedToday:   watchedToday,
					DailyLimit:     cfg.DailyLimit,
					NextEligibleAt: &cooldownEnds,
				}, nil
			}
		}
	}

	return &domain.AdEligibility{
		Eligible:     true,
		CoinReward:   cfg.CoinReward,
		WatchedToday: watchedToday,
		DailyLimit:   cfg.DailyLimit,
	}, nil
}

// GrantAdReward records a completed ad watch and credits the configured reward.
// The impression counter is bumped even when the grant is refused, so placement
// analytics reflect every completed watch. The repository re-validates level,
// daily limit, and cooldown under the account row lock.
func (s *Service) GrantAdReward(ctx context.Context, accountID uuid.UUID, adUnitID string) (*domain.AdRewardGrant, error) {
	if s.adClaimLimiter != nil && s.adWatchLimitPerMinute > 0 {
		count, retryAfter, err := s.adClaimLimiter.ConsumeAdClaim(ctx, accountID, adUnitID, s.adWatchLimitPerMinute, time.Minute)
		if err != nil {
			log.Printf("level=warn component=rewards msg=\"claim limiter unavailable; allowing claim\" account_id=%s err=%v", accountID, err)
		} else if count > s.adWatchLimitPerMinute {
			return nil, fmt.Errorf("%w: retry after %ds", ErrRateLimited, retryAfter)
		}
	}

	cfg, err := s.repo.FindAdRewardConfigByUnitID(ctx, adUnitID)
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, store.ErrAdUnitNotFound
	}

	if err := s.repo.RecordAdView(ctx, adUnitID); err != nil {
		log.Printf("level=warn component=rewards msg=\"failed to record ad view\" ad_unit_id=%s err=%v", adUnitID, err)
	}

	mutation, err := s.repo.GrantAdReward(ctx, accountID, cfg, s.now())
	if err != nil {
		return nil, err
	}

	s.publishEntryEvent(ctx, accountID, mutation, domain.EntryKindEarned, entrySourceForAdType(cfg.AdType))

	return &domain.AdRewardGrant{
		EntryID:    mutation.EntryID,
		CoinReward: mutation.Amount,
		NewBalance: mutation.NewBalance,
	}, nil
}

func entrySourceForAdType(adType string) string {
	switch adType {
	case domain.AdTypeInterstitial:
		return domain.SourceInterstitialAd
	case domain.AdTypeBanner:
		return domain.SourceBannerAd
	default:
		return domain.SourceRewardedVideo
	}
}

// ListAdRewardConfigs returns ad placement configs, optionally filtered by type.
func (s *Service) ListAdRewardConfigs(ctx context.Context, adType string, activeOnly bool) ([]domain.AdRewardConfig, error) {
	if adType != "" && !domain.ValidAdType(adType) {
		return nil, ErrInvalidAdType
	}
	return s.repo.ListAdRewardConfigs(ctx, adType, activeOnly)
}

// CreateAdRewardConfig validates and registers a new ad placement.
func (s *Service) CreateAdRewardConfig(ctx context.Context, payload domain.UpsertAdRewardConfigPayload) (*domain.AdRewardConfig, error) {
	if err := validateAdConfigPayload(payload); err != nil {
		return nil, err
	}
	active := true
	if payload.IsActive != nil {
		active = *payload.IsActive
	}
	cfg := &domain.AdRewardConfig{
		ID:               uuid.New(),
		AdType:           payload.AdType,
		AdUnitID:         strings.TrimSpace(payload.AdUnitID),
		AdUnitName:       strings.TrimSpace(payload.AdUnitName),
		CoinReward:       payload.CoinReward,
		IsActive:         active,
		Description:      payload.Description,
		MinimumWatchTime: payload.MinimumWatchTime,
		DailyLimit:       payload.DailyLimit,
		MinLevel:         payload.MinLevel,
		CooldownMinutes:  payload.CooldownMinutes,
	}
	if err := s.repo.CreateAdRewardConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return s.repo.FindAdRewardConfigByUnitID(ctx, cfg.AdUnitID)
}

// UpdateAdRewardConfig validates and updates an existing ad placement's policy
// fields. Analytics counters are never writable through this path.
func (s *Service) UpdateAdRewardConfig(ctx context.Context, adUnitID string, payload domain.UpsertAdRewardConfigPayload) (*domain.AdRewardConfig, error) {
	if err := validateAdConfigPayload(payload); err != nil {
		return nil, err
	}
	cfg, err := s.repo.FindAdRewardConfigByUnitID(ctx, adUnitID)
	if err != nil {
		return nil, err
	}
	cfg.AdType = payload.AdType
	cfg.AdUnitName = strings.TrimSpace(payload.AdUnitName)
	cfg.CoinReward = payload.CoinReward
	cfg.Description = payload.Description
	cfg.MinimumWatchTime = payload.MinimumWatchTime
	cfg.DailyLimit = payload.DailyLimit
	cfg.MinLevel = payload.MinLevel
	cfg.CooldownMinutes = payload.CooldownMinutes
	if payload.IsActive != nil {
		cfg.IsActive = *payload.IsActive
	}
	if err := s.repo.UpdateAdRewardConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return s.repo.FindAdRewardConfigByUnitID(ctx, adUnitID)
}

func validateAdConfigPayload(payload domain.UpsertAdRewardConfigPayload) error {
	if strings.TrimSpace(payload.AdUnitID) == "" {
		return fmt.Errorf("%w: ad_unit_id is required", ErrInvalidAdConfig)
	}
	if !domain.ValidAdType(payload.AdType) {
		return ErrInvalidAdType
	}
	if payload.CoinReward <= 0 {
		return fmt.Errorf("%w: coin_reward must be positive", ErrInvalidAdConfig)
	}
	if payload.DailyLimit < 0 {
		return fmt.Errorf("%w: daily_limit must not be negative", ErrInvalidAdConfig)
	}
	if payload.CooldownMinutes < 0 {
		return fmt.Errorf("%w: cooldown_minutes must not be negative", ErrInvalidAdConfig)
	}
	if payload.MinLevel < 0 {
		return fmt.Errorf("%w: min_level must not be negative", ErrInvalidAdConfig)
	}
	return nil
}
