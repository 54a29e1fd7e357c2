package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// INCR the claim counter, start the window on the first claim, and report the
// counter together with the remaining window so the caller can tell the client
// when to retry.
var adClaimScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisAdClaimLimiter counts reward claims per account and ad unit in Redis so
// the limit holds across every instance of the service. Keying on the ad unit
// means one placement hitting its cap never blocks claims on another.
type RedisAdClaimLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisAdClaimLimiter(client redis.UniversalClient, prefix string) *RedisAdClaimLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "ledger:ad_claim"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisAdClaimLimiter{
		client: client,
		prefix: trimmedPrefix,
	}
}

// ConsumeAdClaim counts one claim attempt against the account's window for the
// ad unit. A disabled limiter (nil client, non-positive limit or window)
// counts nothing, so claims pass.
func (r *RedisAdClaimLimiter) ConsumeAdClaim(
	ctx context.Context,
	accountID uuid.UUID,
	adUnitID string,
	limit int,
	window time.Duration,
) (count int, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}

	unit := strings.TrimSpace(adUnitID)
	if accountID == uuid.Nil || unit == "" {
		return 0, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, accountID, unit)
	rawResult, err := adClaimScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected ad claim limiter response shape: %T", rawResult)
	}

	currentCount, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected ad claim limiter count type: %T", values[0])
	}

	ttlMs, ok := values[1].(int64)
	if !ok {
		return int(currentCount), 0, fmt.Errorf("unexpected ad claim limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}

	return int(currentCount), retryAfter, nil
}
