package reports

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

const bumpChannel = "reports.bump"

// Cache stores rendered reports in Redis under a per-company version. Bumping
// the version orphans every cached report for that company.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, logger: slog.Default()}
}

// WithLogger overrides the logger.
func (c *Cache) WithLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// storeError wraps a failed write of an already built payload.
type storeError struct{ err error }

func (e *storeError) Error() string { return "reports: cache store: " + e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func versionKey(companyID int64) string {
	return "reports:" + strconv.FormatInt(companyID, 10) + ":version"
}

// Version returns the company's cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context, companyID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKey(companyID)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Key hashes the report id and its parameters under the company's version.
func (c *Cache) Key(ctx context.Context, companyID int64, report string, params any) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("reports: cache key: %w", err)
	}
	sum := blake2b.Sum256(append([]byte(report+"|"), raw...))
	ver, err := c.Version(ctx, companyID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("reports:%d:%d:%s", companyID, ver, hex.EncodeToString(sum[:16])), nil
}

// FetchJSON loads a cached value or populates it using the loader. Concurrent
// misses on the same key share one loader call. hit reports whether the value
// came from Redis. A payload that was built but could not be stored is still
// returned.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) (hit bool, err error) {
	if loader == nil {
		return false, errors.New("reports: cache loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return false, err
		}
		return false, roundTrip(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return true, json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return false, err
	}
	ch := c.group.DoChan(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return raw, &storeError{err: err}
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		var se *storeError
		if errors.As(res.Err, &se) && res.Val != nil {
			c.logger.Warn("report cache store failed", slog.String("key", key), slog.Any("error", se.err))
			return false, json.Unmarshal(res.Val.([]byte), dest)
		}
		if res.Err != nil {
			return false, res.Err
		}
		return false, json.Unmarshal(res.Val.([]byte), dest)
	}
}

// Bump invalidates the company's cached reports and publishes the new version.
func (c *Cache) Bump(ctx context.Context, companyID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey(companyID)).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(companyID, 10)+":"+strconv.FormatInt(ver, 10)).Err()
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
