// Package ratelimit implements per-endpoint sliding-window admission
// counters keyed by client identity.
package ratelimit

import (
	"context"
	"time"
)

// Endpoint names with configured limits.
const (
	EndpointAnalyze    = "analyze"
	EndpointLogin      = "login"
	EndpointToolResult = "tool_result"
	EndpointResume     = "resume"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int

	// ResetIn is how long until the oldest in-window request leaves the
	// window. Header emission rounds this up to whole seconds.
	ResetIn time.Duration
}

// Limiter counts requests per (endpoint, client key) over a sliding window.
//
// A backend failure is returned as an error alongside a zero Decision;
// callers fail open on it. Denial is not an error.
type Limiter interface {
	Check(ctx context.Context, endpoint, clientKey string) (Decision, error)
}

// ResetSeconds converts ResetIn to the whole-second value carried by the
// X-RateLimit-Reset header, rounding up so a client that waits the stated
// time is guaranteed a fresh window.
func (d Decision) ResetSeconds() int {
	if d.ResetIn <= 0 {
		return 0
	}
	secs := int(d.ResetIn / time.Second)
	if d.ResetIn%time.Second != 0 {
		secs++
	}
	return secs
}

func windowKey(endpoint, clientKey string) string {
	return "ratelimit:" + endpoint + ":" + clientKey
}
