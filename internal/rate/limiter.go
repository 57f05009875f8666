package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config tunes the login throttle.
type Config struct {
	Enabled bool `mapstructure:"enabled"`
	// MaxAttempts is the number of failed logins allowed per window.
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
	// PerIP also counts failures per client address.
	PerIP  bool   `mapstructure:"per_ip"`
	Prefix string `mapstructure:"prefix"`
}

// DefaultConfig allows five failures per account and address every 15
// minutes. Throttling stays off until Enabled is set.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Window:      15 * time.Minute,
		PerIP:       true,
		Prefix:      "gs:login",
	}
}

// Limiter counts failed logins in Redis. A nil *Limiter allows everything.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New returns nil when cfg is disabled or client is nil.
func New(client redis.UniversalClient, cfg Config) *Limiter {
	if !cfg.Enabled || client == nil {
		return nil
	}
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	return &Limiter{redis: client, config: cfg}
}

// Allow returns ErrRateLimited when email or ip has used up its budget.
func (l *Limiter) Allow(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	for _, key := range l.keys(email, ip) {
		count, err := l.redis.Get(ctx, key).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count >= int64(l.config.MaxAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// Fail records one failed login and returns ErrRateLimited once the failure
// exhausts a budget.
func (l *Limiter) Fail(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	var limited bool
	for _, key := range l.keys(email, ip) {
		count, err := l.incrementWithTTL(ctx, key)
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxAttempts) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counters after a successful login.
func (l *Limiter) Reset(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.keys(email, ip)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the failures recorded for email in the current window.
func (l *Limiter) Attempts(ctx context.Context, email string) (int, error) {
	if l == nil {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, l.userKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(max(count, 0)), nil
}

// RetryAfter is the window length, used for the Retry-After header.
func (l *Limiter) RetryAfter() time.Duration {
	if l == nil {
		return 0
	}
	return l.config.Window
}

func (l *Limiter) keys(email, ip string) []string {
	keys := []string{l.userKey(email)}
	if l.config.PerIP && ip != "" {
		keys = append(keys, l.config.Prefix+":ip:"+ip)
	}
	return keys
}

func (l *Limiter) userKey(email string) string {
	return l.config.Prefix + ":u:" + strings.ToLower(strings.TrimSpace(email))
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	// Only the first hit opens the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
