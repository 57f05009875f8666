package rate

import "errors"

var (
	// ErrRateLimited is returned when a login budget is exhausted.
	ErrRateLimited = errors.New("rate: too many failed logins")
	// ErrRedisUnavailable wraps counter backend failures.
	ErrRedisUnavailable = errors.New("rate: redis unavailable")
)
