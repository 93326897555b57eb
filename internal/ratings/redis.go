package ratings

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/outcome"
	"github.com/park285/cheese-arena/internal/presence"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "rating:"

// RedisCache is a read-through cache in front of a slower rating source.
// Redis failures degrade to the source instead of failing the lookup.
type RedisCache struct {
	rdb    *redis.Client
	source presence.RatingLookup
	ttl    time.Duration
}

func NewRedisCache(rdb *redis.Client, source presence.RatingLookup, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &RedisCache{rdb: rdb, source: source, ttl: ttl}
}

func key(userID string) string { return keyPrefix + userID }

func (c *RedisCache) Rating(ctx context.Context, userID string) (int, bool, error) {
	raw, err := c.rdb.Get(ctx, key(userID)).Result()
	switch {
	case err == nil:
		if n, perr := strconv.Atoi(raw); perr == nil {
			return n, true, nil
		}
		obslog.L().Warn("rating_cache_corrupt", zap.String("user_id", userID), zap.String("raw", raw))
	case errors.Is(err, redis.Nil):
	default:
		obslog.L().Warn("rating_cache_get_failed", zap.String("user_id", userID), zap.Error(err))
	}

	if c.source == nil {
		return 0, false, nil
	}
	rating, found, err := c.source.Rating(ctx, userID)
	if err != nil || !found {
		return rating, found, err
	}
	if serr := c.rdb.Set(ctx, key(userID), strconv.Itoa(rating), c.ttl).Err(); serr != nil {
		obslog.L().Warn("rating_cache_set_failed", zap.String("user_id", userID), zap.Error(serr))
	}
	return rating, true, nil
}

// Invalidate drops cached ratings.
func (c *RedisCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, key(id))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Name and Publish let the cache sit in the outcome fan-out: a rated result
// drops both cached ratings so the next connect reads the updated value.
func (c *RedisCache) Name() string { return "rating_cache" }

func (c *RedisCache) Publish(ctx context.Context, rec outcome.Record) error {
	if !rec.IsRated {
		return nil
	}
	return c.Invalidate(ctx, rec.White.UserID, rec.Black.UserID)
}

// ParseRedisURL turns redis://[:pass@]host[:port][/db] into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := u.Port()
	if portStr == "" {
		portStr = "6379"
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return nil, err
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{
		Addr:     host + ":" + portStr,
		Username: u.User.Username(),
		Password: pass,
		DB:       db,
	}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}
