package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisChecker pings a Redis client and reports its pool statistics.
type RedisChecker struct {
	client        redis.UniversalClient
	SlowThreshold time.Duration
}

// NewRedisChecker creates a checker with a 100ms slow threshold.
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client, SlowThreshold: 100 * time.Millisecond}
}

// Name returns "redis".
func (r *RedisChecker) Name() string {
	return "redis"
}

// Check pings the server.
func (r *RedisChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return Unhealthy("redis ping failed", err)
	}
	latency := time.Since(start)

	details := map[string]any{"ping": latency.String()}
	if stats := r.client.PoolStats(); stats != nil {
		details["total_conns"] = stats.TotalConns
		details["idle_conns"] = stats.IdleConns
		details["timeouts"] = stats.Timeouts
	}
	if r.SlowThreshold > 0 && latency > r.SlowThreshold {
		return Degraded("redis slow").WithDetails(details)
	}
	return Healthy("redis reachable").WithDetails(details)
}
