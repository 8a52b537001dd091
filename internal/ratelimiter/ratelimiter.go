// Package ratelimiter throttles transfer requests with a token bucket.
package ratelimiter

import (
	"context"

	"github.com/nspcc-dev/hsm-http-gw/response"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// RateLimiter is safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond sustained with bursts of
// burst requests. A zero rate disables limiting.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}

	if burst == 0 {
		burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow consumes a token if one is available.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the number of tokens currently available.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

// Handler rejects requests over the limit with 429 before calling next.
func (r *RateLimiter) Handler(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(c *fasthttp.RequestCtx) {
		if !r.Allow() {
			c.Response.Header.Set(fasthttp.HeaderRetryAfter, "1")
			response.Error(c, "rate limit exceeded, try again later", fasthttp.StatusTooManyRequests)
			return
		}

		next(c)
	}
}
