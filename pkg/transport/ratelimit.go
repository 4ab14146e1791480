package transport

import (
	"golang.org/x/time/rate"
)

// NewRateLimiter builds a token-bucket RateLimiter allowing rps requests per
// second with the given burst. Pipelines that fan out many short executions
// use this to stay under API quotas.
func NewRateLimiter(rps float64, burst int) RateLimiter {
	return rate.NewLimiter(rate.Limit(rps), burst)
}
