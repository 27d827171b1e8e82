// Package quota tracks per-user token consumption against a monthly
// allowance.
package quota

import (
	"context"
	"time"
)

// Status reports a user's standing against their token allowance.
type Status struct {
	Allowed   bool
	Used      int64
	Limit     int64
	Remaining int64

	// PeriodEnd is when the current accounting period rolls over and
	// usage resets.
	PeriodEnd time.Time
}

// Accountant meters token usage. Check gates admission before a session is
// created; Record adds provider-reported usage after each LLM turn.
//
// Backend failures are returned as errors; admission callers fail open and
// recording callers log and continue. Quota exhaustion is not an error.
type Accountant interface {
	Check(ctx context.Context, userID string) (Status, error)
	Record(ctx context.Context, userID string, tokens int64) error
}

// usageKey holds one month's token count for a user. The month suffix makes
// rollover automatic: a new period reads as zero.
func usageKey(userID string, now time.Time) string {
	return "quota:tokens:" + userID + ":" + now.UTC().Format("2006-01")
}

// limitKey holds an optional per-user allowance override.
func limitKey(userID string) string {
	return "quota:limit:" + userID
}

// periodEnd returns the first instant of the next month in UTC.
func periodEnd(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

func statusFor(used, limit int64, end time.Time) Status {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Allowed:   used < limit,
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		PeriodEnd: end,
	}
}
