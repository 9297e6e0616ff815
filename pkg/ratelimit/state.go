// Package ratelimit tracks the Marvel API daily call quota and gates requests.
// Calls are counted per UTC day in Redis so every client instance sharing the
// key pair sees the same budget.
package ratelimit

import (
	"time"
)

// Redis keys for quota state storage.
const (
	// RedisKeyCallsPrefix is followed by the UTC date (2006-01-02).
	RedisKeyCallsPrefix = "marvel:quota:calls:"

	// RedisKeyExhaustedUntil holds the unix time until which the API answered 429.
	RedisKeyExhaustedUntil = "marvel:quota:exhausted_until"
)

// DefaultDailyLimit is the call quota of a free Marvel developer key.
const DefaultDailyLimit = 3000

// Thresholds for quota decisions, as fractions of the daily limit.
const (
	// QuotaWarningRatio applies throttling when the remaining share falls below this value.
	QuotaWarningRatio = 0.10

	// QuotaHealthyRatio indicates normal operation.
	QuotaHealthyRatio = 0.50
)

// QuotaState represents the daily call quota.
type QuotaState struct {
	// Limit is the number of calls allowed per UTC day.
	Limit int `json:"limit"`

	// CallsUsed is the number of calls made today.
	CallsUsed int `json:"calls_used"`

	// ResetAt is the next UTC midnight.
	ResetAt time.Time `json:"reset_at"`

	// ExhaustedUntil is set after the API answered 429.
	ExhaustedUntil time.Time `json:"exhausted_until"`

	// LastUpdate is when this state was read.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true while at least QuotaHealthyRatio of the quota is left.
	IsHealthy bool `json:"is_healthy"`
}

// Remaining returns the calls left today, never negative.
func (s *QuotaState) Remaining() int {
	if r := s.Limit - s.CallsUsed; r > 0 {
		return r
	}
	return 0
}

// IsStale returns true if the state data is older than the given duration.
func (s *QuotaState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests must not be sent.
func (s *QuotaState) NeedsCriticalBlock() bool {
	if time.Now().Before(s.ExhaustedUntil) {
		return true
	}
	return s.Remaining() == 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *QuotaState) NeedsThrottling() bool {
	if s.NeedsCriticalBlock() {
		return false
	}
	return float64(s.Remaining()) < float64(s.Limit)*QuotaWarningRatio
}

// TimeUntilReset returns the duration until the quota resets.
// Returns 0 if the reset time has already passed.
func (s *QuotaState) TimeUntilReset() time.Duration {
	reset := s.ResetAt
	if s.ExhaustedUntil.After(reset) {
		reset = s.ExhaustedUntil
	}
	duration := time.Until(reset)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on the remaining calls.
func (s *QuotaState) UpdateHealth() {
	s.IsHealthy = !s.NeedsCriticalBlock() &&
		float64(s.Remaining()) >= float64(s.Limit)*QuotaHealthyRatio
}

// DayKey returns the Redis key counting calls on t's UTC day.
func DayKey(t time.Time) string {
	return RedisKeyCallsPrefix + t.UTC().Format("2006-01-02")
}

// NextReset returns the UTC midnight following t.
func NextReset(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
