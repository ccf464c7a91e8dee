// Package redis caches fully resolved price series in Redis so repeated
// backtests over the same range skip the upstream providers entirely. The
// client is wrapped in a circuit breaker: a flapping Redis degrades to
// cache misses instead of slowing every request down.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"quantengine/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const defaultSeriesTTL = 15 * time.Minute

// CacheConfig configures the Redis series cache.
type CacheConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration // default 15m

	BreakerFailures int           // default 5
	BreakerReset    time.Duration // default 10s
}

// Cache is a read-through series cache keyed by the exact request.
type Cache struct {
	client  *goredis.Client
	ttl     time.Duration
	breaker *Breaker
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// New creates the cache and pings the server.
func New(cfg CacheConfig) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSeriesTTL
	}
	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	reset := cfg.BreakerReset
	if reset <= 0 {
		reset = 10 * time.Second
	}

	breaker := NewBreaker(failures, reset)
	breaker.OnStateChange = func(from, to State) {
		log.Printf("[redis] breaker %s -> %s", from, to)
	}

	log.Printf("[redis] connected to %s (ttl=%s)", cfg.Addr, ttl)
	return &Cache{client: client, ttl: ttl, breaker: breaker}, nil
}

func seriesKey(symbol, interval string, start, end time.Time) string {
	return "series:" + symbol + ":" + interval + ":" +
		strconv.FormatInt(start.Unix(), 10) + ":" + strconv.FormatInt(end.Unix(), 10)
}

// Get returns the cached series for an exact request, or a miss. Transport
// errors count as misses and feed the breaker.
func (c *Cache) Get(ctx context.Context, symbol, interval string, start, end time.Time) (*model.Series, bool) {
	key := seriesKey(symbol, interval, start, end)

	var payload string
	err := c.breaker.Execute(func() error {
		var err error
		payload, err = c.client.Get(ctx, key).Result()
		if err == goredis.Nil {
			payload = ""
			return nil
		}
		return err
	})
	if err != nil {
		if err != ErrBreakerOpen {
			log.Printf("[redis] get %s: %v", key, err)
		}
		return nil, false
	}
	if payload == "" {
		return nil, false
	}

	var s model.Series
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		log.Printf("[redis] corrupt cache entry %s: %v", key, err)
		c.client.Del(ctx, key)
		return nil, false
	}
	return &s, true
}

// Put stores a resolved series under its request key with the cache TTL.
// Failures are logged and swallowed.
func (c *Cache) Put(ctx context.Context, symbol, interval string, start, end time.Time, s *model.Series) {
	payload, err := json.Marshal(s)
	if err != nil {
		log.Printf("[redis] marshal series: %v", err)
		return
	}
	key := seriesKey(symbol, interval, start, end)

	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, payload, c.ttl).Err()
	})
	if err != nil && err != ErrBreakerOpen {
		log.Printf("[redis] set %s: %v", key, err)
	}
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
