// Package ratelimit paces provider calls. Wait blocks until the provider's
// per-second budget admits one more message, so a large campaign is
// queued rather than burst at the gateway.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter admits one send at a time for a named provider.
type Limiter interface {
	Wait(ctx context.Context, provider string) error
}

// Unlimited never blocks.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context, _ string) error { return ctx.Err() }

// Local is an in-process token bucket per provider. Providers without a
// configured rate are not limited.
type Local struct {
	mu       sync.Mutex
	limits   map[string]int
	limiters map[string]*rate.Limiter
}

func NewLocal(perSecond map[string]int) *Local {
	return &Local{limits: perSecond, limiters: make(map[string]*rate.Limiter)}
}

func (l *Local) Wait(ctx context.Context, provider string) error {
	lim := l.limiter(provider)
	if lim == nil {
		return ctx.Err()
	}
	return lim.Wait(ctx)
}

func (l *Local) limiter(provider string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[provider]; ok {
		return lim
	}
	n := l.limits[provider]
	if n <= 0 {
		return nil
	}
	lim := rate.NewLimiter(rate.Limit(n), 1)
	l.limiters[provider] = lim
	return lim
}

// Fixed one-second window shared by every process using the same Redis.
// Returns 1 when admitted, 0 otherwise.
const windowLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return 0
end

local n = redis.call("INCR", key)
if n == 1 then
    redis.call("EXPIRE", key, ttl)
end
return 1
`

// Redis is a distributed fixed-window limiter.
type Redis struct {
	client *redis.Client
	script *redis.Script
	limits map[string]int
	now    func() time.Time
	poll   time.Duration
}

func NewRedis(client *redis.Client, perSecond map[string]int) *Redis {
	return &Redis{
		client: client,
		script: redis.NewScript(windowLuaScript),
		limits: perSecond,
		now:    time.Now,
		poll:   50 * time.Millisecond,
	}
}

// Allow reports whether one more message fits in the current window.
func (r *Redis) Allow(ctx context.Context, provider string) (bool, error) {
	limit := r.limits[provider]
	if limit <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("ratelimit:%s:sec:%d", provider, r.now().Unix())
	res, err := r.script.Run(ctx, r.client, []string{key}, limit, 2).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return res == 1, nil
}

func (r *Redis) Wait(ctx context.Context, provider string) error {
	for {
		ok, err := r.Allow(ctx, provider)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
