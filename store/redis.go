package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/token"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// minTTL is the floor for a key's expiry: a token written at or past its own
// expiry is still stored, and Redis drops it one second later.
const minTTL = time.Second

// RedisStore persists tokens in Redis under <prefix>:<origin>:<kind>.
// Each key expires together with the token it holds.
//
//	Performance: Get is one GET; SetPair and Clear are one MULTI/EXEC round-trip.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	origin string
	clock  token.Clock
	log    *zap.Logger
}

// NewRedisStore creates a RedisStore scoped to origin.
func NewRedisStore(client redis.UniversalClient, prefix, origin string) *RedisStore {
	if prefix == "" {
		prefix = "gs"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		origin: normalizeOrigin(origin),
		clock:  time.Now,
		log:    zap.NewNop(),
	}
}

// WithLogger sets the logger used to report storage failures.
func (s *RedisStore) WithLogger(log *zap.Logger) *RedisStore {
	if log != nil {
		s.log = log
	}
	return s
}

// WithClock sets the clock used to derive key TTLs.
func (s *RedisStore) WithClock(clock token.Clock) *RedisStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func (s *RedisStore) key(kind Kind) string {
	return s.prefix + ":" + s.origin + ":" + string(kind)
}

func normalizeOrigin(origin string) string {
	origin = strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
	if origin == "" {
		return "default"
	}
	return origin
}

func (s *RedisStore) Get(ctx context.Context, kind Kind) (string, bool) {
	if s == nil || s.redis == nil {
		return "", false
	}
	v, err := s.redis.Get(ctx, s.key(kind)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("token store read failed", zap.String("kind", string(kind)), zap.Error(err))
		}
		return "", false
	}
	return v, v != ""
}

func (s *RedisStore) Set(ctx context.Context, kind Kind, tok string) {
	if s == nil || s.redis == nil {
		return
	}
	var err error
	if tok == "" {
		err = s.redis.Del(ctx, s.key(kind)).Err()
	} else {
		err = s.redis.Set(ctx, s.key(kind), tok, s.ttlFor(tok)).Err()
	}
	if err != nil {
		s.log.Warn("token store write failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *RedisStore) SetPair(ctx context.Context, pair Pair) {
	if s == nil || s.redis == nil {
		return
	}
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queue(ctx, pipe, AccessToken, pair.AccessToken)
		s.queue(ctx, pipe, RefreshToken, pair.RefreshToken)
		return nil
	})
	if err != nil {
		s.log.Warn("token store pair write failed", zap.Error(err))
	}
}

func (s *RedisStore) Clear(ctx context.Context) {
	if s == nil || s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, s.key(AccessToken), s.key(RefreshToken)).Err(); err != nil {
		s.log.Warn("token store clear failed", zap.Error(err))
	}
}

func (s *RedisStore) queue(ctx context.Context, pipe redis.Pipeliner, kind Kind, tok string) {
	if tok == "" {
		pipe.Del(ctx, s.key(kind))
		return
	}
	pipe.Set(ctx, s.key(kind), tok, s.ttlFor(tok))
}

// ttlFor returns the remaining lifetime of tok, or 0 (no expiry) when its
// claims cannot be decoded.
func (s *RedisStore) ttlFor(tok string) time.Duration {
	claims, err := token.Decode(tok)
	if err != nil {
		return 0
	}
	ttl := claims.ExpiresTime().Sub(s.clock())
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}
