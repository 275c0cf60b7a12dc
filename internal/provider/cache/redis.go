package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"marketdata/internal/provider"
)

// RedisOptions configures the Redis connection of a RedisStore.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// upsertScript writes the record only when no newer fetch is stored.
// Fetch times are compared as unix microseconds, exact in a Lua number.
var upsertScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'fetched_at')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'fetched_at', ARGV[1], 'data', ARGV[2])
return 1
`)

// RedisStore keeps one hash per instrument for the latest quote and one
// hash per instrument for daily bars keyed by date.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis connects and pings Redis.
func DialRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		MaxRetries:   2,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, opts.KeyPrefix), nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) quoteKey(id string) string { return s.prefix + "quote:" + id }
func (s *RedisStore) barsKey(id string) string  { return s.prefix + "bars:" + id }

func (s *RedisStore) UpsertQuote(ctx context.Context, rec Record) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record %s: %w", rec.InstrumentID, err)
	}
	n, err := upsertScript.Run(ctx, s.client, []string{s.quoteKey(rec.InstrumentID)}, rec.FetchedAt.UnixMicro(), string(data)).Int()
	if err != nil {
		return false, fmt.Errorf("upsert quote %s: %w", rec.InstrumentID, err)
	}
	return n == 1, nil
}

func (s *RedisStore) LatestQuote(ctx context.Context, instrumentID string) (Record, bool, error) {
	data, err := s.client.HGet(ctx, s.quoteKey(instrumentID), "data").Result()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get quote %s: %w", instrumentID, err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return Record{}, false, fmt.Errorf("unmarshal quote %s: %w", instrumentID, err)
	}
	return rec, true, nil
}

func (s *RedisStore) PutBars(ctx context.Context, bars []provider.PriceBar) error {
	pipe := s.client.Pipeline()
	for _, b := range bars {
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal bar %s %s: %w", b.InstrumentID, b.Date.Format(dateLayout), err)
		}
		pipe.HSet(ctx, s.barsKey(b.InstrumentID), b.Date.Format(dateLayout), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put bars: %w", err)
	}
	return nil
}

func (s *RedisStore) Bars(ctx context.Context, instrumentID string, r provider.DateRange) ([]provider.PriceBar, error) {
	all, err := s.client.HGetAll(ctx, s.barsKey(instrumentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get bars %s: %w", instrumentID, err)
	}
	out := make([]provider.PriceBar, 0, len(all))
	for date, data := range all {
		var b provider.PriceBar
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			return nil, fmt.Errorf("unmarshal bar %s %s: %w", instrumentID, date, err)
		}
		if r.Contains(b.Date) {
			out = append(out, b)
		}
	}
	sortBars(out)
	return out, nil
}
