package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	marvelQuotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marvel_quota_remaining",
		Help: "Number of Marvel API calls remaining today",
	})

	marvelQuotaCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marvel_quota_calls_total",
		Help: "Total number of Marvel API calls counted against the quota",
	})

	marvelQuotaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marvel_quota_blocks_total",
		Help: "Total number of requests blocked due to an exhausted quota",
	})

	marvelQuotaThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marvel_quota_throttles_total",
		Help: "Total number of requests throttled due to a low quota",
	})
)

// DefaultThrottleDelay is the pause applied to requests while the quota is low.
const DefaultThrottleDelay = 1 * time.Second

// Tracker counts Marvel API calls and gates requests.
type Tracker struct {
	redis         *redis.Client
	limit         int
	throttleDelay time.Duration
	logger        zerolog.Logger
}

// NewTracker creates a new quota tracker. A non-positive limit uses DefaultDailyLimit.
func NewTracker(redisClient *redis.Client, dailyLimit int, logger zerolog.Logger) *Tracker {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	return &Tracker{
		redis:         redisClient,
		limit:         dailyLimit,
		throttleDelay: DefaultThrottleDelay,
		logger:        logger,
	}
}

// SetThrottleDelay changes the pause applied in the warning state.
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// Limit returns the daily call limit.
func (t *Tracker) Limit() int {
	return t.limit
}

// GetState retrieves today's quota state from Redis.
// Missing keys mean no calls were made today.
func (t *Tracker) GetState(ctx context.Context) (*QuotaState, error) {
	now := time.Now()

	used, err := t.redis.Get(ctx, DayKey(now)).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get calls used: %w", err)
	}

	exhaustedUnix, err := t.redis.Get(ctx, RedisKeyExhaustedUntil).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get exhausted until: %w", err)
	}

	state := &QuotaState{
		Limit:      t.limit,
		CallsUsed:  used,
		ResetAt:    NextReset(now),
		LastUpdate: now,
	}
	if exhaustedUnix > 0 {
		state.ExhaustedUntil = time.Unix(exhaustedUnix, 0)
	}
	state.UpdateHealth()

	return state, nil
}

// RecordCall counts one call against today's quota and returns today's total.
func (t *Tracker) RecordCall(ctx context.Context) (int, error) {
	now := time.Now()
	key := DayKey(now)

	pipe := t.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// Keep the counter a little past midnight so late readers still see it
	pipe.ExpireAt(ctx, key, NextReset(now).Add(time.Hour))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("record call in redis: %w", err)
	}

	used := int(incr.Val())
	remaining := t.limit - used
	if remaining < 0 {
		remaining = 0
	}

	marvelQuotaCallsTotal.Inc()
	marvelQuotaRemaining.Set(float64(remaining))

	if remaining == 0 {
		t.logger.Error().
			Int("calls_used", used).
			Int("limit", t.limit).
			Msg("Marvel daily quota used up - requests will be blocked")
	} else if float64(remaining) < float64(t.limit)*QuotaWarningRatio {
		t.logger.Warn().
			Int("remaining", remaining).
			Msg("Marvel daily quota low - requests will be throttled")
	}

	return used, nil
}

// MarkExhausted blocks requests until the given time, after the API answered 429.
func (t *Tracker) MarkExhausted(ctx context.Context, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}

	if err := t.redis.Set(ctx, RedisKeyExhaustedUntil, until.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("store exhausted state in redis: %w", err)
	}

	marvelQuotaRemaining.Set(0)
	t.logger.Error().
		Time("until", until).
		Msg("Marvel API reported quota exceeded - blocking requests")

	return nil
}

// ShouldAllowRequest checks if a request should be allowed based on the current quota.
// Returns false if the quota is used up. In the warning state it waits
// for the throttle delay or until ctx is done.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get quota state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("calls_used", state.CallsUsed).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Marvel quota exhausted - blocking request")

		marvelQuotaBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() && t.throttleDelay > 0 {
		t.logger.Warn().
			Int("remaining", state.Remaining()).
			Msg("Marvel quota low - throttling request")

		marvelQuotaThrottlesTotal.Inc()
		timer := time.NewTimer(t.throttleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}
