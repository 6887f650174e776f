package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRateLimitPrefix = "claim_service:rate_limit"
	claimSubmissionScope   = "claim_submission"
)

// The window starts with the first hit: SET NX only creates the counter when the key is
// absent, and INCR keeps the expiry it was given.
var claimWindowScript = redis.NewScript(`
redis.call("SET", KEYS[1], 0, "PX", ARGV[1], "NX")
local hits = redis.call("INCR", KEYS[1])
return {hits, redis.call("PTTL", KEYS[1])}
`)

// ClaimRateLimit is the state of a principal's claim window after counting a submission.
type ClaimRateLimit struct {
	Count      int
	Limit      int
	RetryAfter time.Duration
}

// Exceeded reports whether the counted submission went over the limit.
func (l ClaimRateLimit) Exceeded() bool {
	return l.Limit > 0 && l.Count > l.Limit
}

// RetryAfterSeconds rounds RetryAfter up for the Retry-After header.
func (l ClaimRateLimit) RetryAfterSeconds() int {
	seconds := int(math.Ceil(l.RetryAfter.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// RedisClaimRateLimiter counts claim submissions per principal in a fixed window shared by
// every API instance.
type RedisClaimRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewRedisClaimRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisClaimRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}
	if window < time.Second {
		window = time.Second
	}
	return &RedisClaimRateLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// CountClaim records one claim submission for subject. A nil limiter, a missing client,
// a non-positive limit or a blank subject count nothing and never exceed.
func (r *RedisClaimRateLimiter) CountClaim(ctx context.Context, subject string) (ClaimRateLimit, error) {
	subject = strings.TrimSpace(subject)
	if r == nil || r.client == nil || r.limit <= 0 || subject == "" {
		return ClaimRateLimit{}, nil
	}

	key := r.prefix + ":" + claimSubmissionScope + ":" + subject
	windowMs := r.window.Milliseconds()
	reply, err := claimWindowScript.Run(ctx, r.client, []string{key}, windowMs).Int64Slice()
	if err != nil {
		return ClaimRateLimit{}, fmt.Errorf("count claim for %s: %w", subject, err)
	}
	if len(reply) != 2 {
		return ClaimRateLimit{}, fmt.Errorf("count claim for %s: unexpected reply %v", subject, reply)
	}

	ttlMs := reply[1]
	if ttlMs < 0 {
		ttlMs = windowMs
	}
	return ClaimRateLimit{
		Count:      int(reply[0]),
		Limit:      r.limit,
		RetryAfter: time.Duration(ttlMs) * time.Millisecond,
	}, nil
}
