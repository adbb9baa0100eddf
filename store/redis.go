package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps decision counters in Redis so several gateway instances
// can report together.
//
// Keys, per filter:
//
//	<prefix>:<filter>:total              hash admitted|rejected, never expires
//	<prefix>:<filter>:scope              hash <scope> -> rejections, never expires
//	<prefix>:<filter>:minute:<yyyymmddhhmm> hash admitted|rejected, expires after TTL
//	<prefix>:<filter>:consumer:<id>      hash admitted|rejected, expires after TTL
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Ensure RedisStore implements Store interface
var _ Store = (*RedisStore)(nil)

// RedisConfig for creating a Redis store
type RedisConfig struct {
	Addr     string        // Redis address (e.g., "localhost:6379")
	Password string        // Redis password (empty for no auth)
	DB       int           // Redis database number
	Prefix   string        // Key prefix (default: "scopefence")
	TTL      time.Duration // TTL for per-minute and per-consumer keys (default: 24 hours)
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(config RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return NewRedisStoreWithClient(client, config)
}

// NewRedisStoreWithClient wraps an existing client. Addr, Password and DB in
// config are ignored.
func NewRedisStoreWithClient(client *redis.Client, config RedisConfig) *RedisStore {
	prefix := strings.Trim(config.Prefix, ":")
	if prefix == "" {
		prefix = "scopefence"
	}
	ttl := config.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(filter string, parts ...string) string {
	return s.prefix + ":" + filter + ":" + strings.Join(parts, ":")
}

// Record counts one event in a single pipeline
func (s *RedisStore) Record(ctx context.Context, ev Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "rejected"
	if ev.Admitted {
		field = "admitted"
	}

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, s.key(ev.Filter, "total"), field, 1)

	if !ev.Admitted {
		pipe.HIncrBy(ctx, s.key(ev.Filter, "scope"), string(ev.Scope), 1)
	}

	minuteKey := s.key(ev.Filter, "minute", at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, minuteKey, field, 1)
	pipe.Expire(ctx, minuteKey, s.ttl)

	if ev.Consumer != "" {
		consumerKey := s.key(ev.Filter, "consumer", ev.Consumer)
		pipe.HIncrBy(ctx, consumerKey, field, 1)
		pipe.Expire(ctx, consumerKey, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// Counts reads the cumulative totals of filter
func (s *RedisStore) Counts(ctx context.Context, filter string) (Counts, error) {
	pipe := s.client.Pipeline()
	total := pipe.HGetAll(ctx, s.key(filter, "total"))
	scopes := pipe.HGetAll(ctx, s.key(filter, "scope"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Counts{}, fmt.Errorf("failed to read counts: %w", err)
	}

	out := Counts{RejectedByScope: make(map[string]int64)}
	for field, raw := range total.Val() {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Counts{}, fmt.Errorf("bad counter %s: %w", field, err)
		}
		switch field {
		case "admitted":
			out.Admitted = n
		case "rejected":
			out.Rejected = n
		}
	}
	for scope, raw := range scopes.Val() {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Counts{}, fmt.Errorf("bad counter %s: %w", scope, err)
		}
		out.RejectedByScope[scope] = n
	}
	return out, nil
}

// ConsumerCounts returns the admitted and rejected counts of one consumer
// within the TTL window.
func (s *RedisStore) ConsumerCounts(ctx context.Context, filter, consumer string) (admitted, rejected int64, err error) {
	vals, err := s.client.HMGet(ctx, s.key(filter, "consumer", consumer), "admitted", "rejected").Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read consumer counts: %w", err)
	}
	return parseCount(vals[0]), parseCount(vals[1]), nil
}

func parseCount(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// Clear removes all keys under the prefix
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
