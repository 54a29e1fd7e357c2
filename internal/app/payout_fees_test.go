package app

import (
	"errors"
	"testing"

	"github.com/dropstrike/ledger-service/internal/domain"
)

func testPayoutPolicy() domain.PayoutPolicy {
	return domain.PayoutPolicy{
		ConversionRate:     0.001,
		PlatformFeeRate:    0.05,
		GatewayFeeRate:     0.02,
		GatewayFeeMinCents: 25,
		GatewayFeeMaxCents: 2000,
		MinPayoutCents:     100,
		MaxPayoutCents:     1000000,
	}
}

func TestQuotePayout(t *testing.T) {
	tests := []struct {
		name            string
		amountCents     int64
		wantCoins       int64
		wantPlatformFee int64
		wantGatewayFee  int64
		wantNet         int64
	}{
		{
			name:            "one dollar payout",
			amountCents:     100,
			wantCoins:       1000,
			wantPlatformFee: 5,
			wantGatewayFee:  25, // 2% of 100 is below the 25 cent floor
			wantNet:         70,
		},
		{
			name:            "gateway fee uses percentage above the floor",
			amountCents:     5000,
			wantCoins:       50000,
			wantPlatformFee: 250,
			wantGatewayFee:  100,
			wantNet:         4650,
		},
		{
			name:            "gateway fee capped at the ceiling",
			amountCents:     500000,
			wantCoins:       5000000,
			wantPlatformFee: 25000,
			wantGatewayFee:  2000, // 2% would be 10000
			wantNet:         473000,
		},
		{
			name:            "coin cost rounds up",
			amountCents:     101,
			wantCoins:       1010,
			wantPlatformFee: 5,
			wantGatewayFee:  25,
			wantNet:         71,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(nil, nil, nil, testPayoutPolicy(), 0)
			quote, err := s.QuotePayout(tt.amountCents)
			if err != nil {
				t.Fatalf("QuotePayout returned error: %v", err)
			}
			if quote.CoinsRequired != tt.wantCoins {
				t.Fatalf("expected coins=%d, got %d", tt.wantCoins, quote.CoinsRequired)
			}
			if quote.PlatformFeeCents != tt.wantPlatformFee {
				t.Fatalf("expected platform fee=%d, got %d", tt.wantPlatformFee, quote.PlatformFeeCents)
			}
			if quote.GatewayFeeCents != tt.wantGatewayFee {
				t.Fatalf("expected gateway fee=%d, got %d", tt.wantGatewayFee, quote.GatewayFeeCents)
			}
			if quote.NetAmountCents != tt.wantNet {
				t.Fatalf("expected net=%d, got %d", tt.wantNet, quote.NetAmountCents)
			}
		})
	}
}

func TestQuotePayoutBounds(t *testing.T) {
	s := NewService(nil, nil, nil, testPayoutPolicy(), 0)

	if _, err := s.QuotePayout(99); !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("expected ErrAmountOutOfRange below minimum, got %v", err)
	}
	if _, err := s.QuotePayout(1000001); !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("expected ErrAmountOutOfRange above maximum, got %v", err)
	}
}

func TestQuotePayoutRejectsAmountConsumedByFees(t *testing.T) {
	policy := testPayoutPolicy()
	policy.MinPayoutCents = 1
	policy.GatewayFeeMinCents = 30
	s := NewService(nil, nil, nil, policy, 0)

	// 30 cents gross: platform fee 2 + gateway floor 30 leaves nothing.
	if _, err := s.QuotePayout(30); !errors.Is(err, ErrAmountTooSmall) {
		t.Fatalf("expected ErrAmountTooSmall, got %v", err)
	}
}

func TestQuoteUsesRateSnapshot(t *testing.T) {
	policy := testPayoutPolicy()
	policy.ConversionRate = 0.002 // 500 coins per dollar
	s := NewService(nil, nil, nil, policy, 0)

	quote, err := s.QuotePayout(100)
	if err != nil {
		t.Fatalf("QuotePayout returned error: %v", err)
	}
	if quote.CoinsRequired != 500 {
		t.Fatalf("expected 500 coins at 0.002 USD/coin, got %d", quote.CoinsRequired)
	}
}
