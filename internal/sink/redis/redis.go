package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/beacon/internal/config"
	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/sink"
	"github.com/redis/go-redis/v9"
)

// DefaultCountsTTL keeps daily counters for a week
const DefaultCountsTTL = 7 * 24 * time.Hour

var appendEvent = redis.NewScript(appendEventScript)

// Writer appends events to a Redis stream. Alongside the stream it keeps
// per-day counters by event name for the check command; they are an
// operational aid and expire after CountsTTL.
type Writer struct {
	client    *redis.Client
	stream    string
	maxLen    int64
	countsTTL time.Duration
}

// Open connects to Redis and returns a stream writer
func Open(cfg config.RedisConfig, stream string, maxLen int64) (*Writer, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Writer{client: client, stream: stream, maxLen: maxLen, countsTTL: DefaultCountsTTL}, nil
}

// SetCountsTTL changes how long daily counters live. Zero disables them.
func (w *Writer) SetCountsTTL(ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	w.countsTTL = ttl
}

// CountsEnabled reports whether daily counters are kept
func (w *Writer) CountsEnabled() bool {
	return w.countsTTL > 0
}

// Write appends rec to the stream and counts it for its day when counters
// are enabled
func (w *Writer) Write(ctx context.Context, rec sink.Record) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}

	keys := []string{w.stream, w.countsKey(rec.Time)}
	args := []interface{}{
		w.maxLen,
		rec.Page,
		rec.MeasurementID,
		rec.Name,
		rec.Time.UTC().Format(time.RFC3339Nano),
		string(params),
		int64(w.countsTTL / time.Second),
	}
	return appendEvent.Run(ctx, w.client, keys, args...).Err()
}

// Counts returns the number of events of each name written on day
func (w *Writer) Counts(ctx context.Context, day time.Time) (map[string]int64, error) {
	data, err := w.client.HGetAll(ctx, w.countsKey(day)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for name, raw := range data {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse count for %s: %w", name, err)
		}
		out[name] = n
	}
	return out, nil
}

// Recent returns up to n of the newest records, newest first
func (w *Writer) Recent(ctx context.Context, n int64) ([]sink.Record, error) {
	msgs, err := w.client.XRevRangeN(ctx, w.stream, "+", "-", n).Result()
	if err != nil {
		return nil, err
	}
	out := make([]sink.Record, 0, len(msgs))
	for _, msg := range msgs {
		rec, err := parseRecord(msg.Values)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stream entry %s: %w", msg.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Ping checks the connection
func (w *Writer) Ping(ctx context.Context) error {
	return w.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (w *Writer) Close() error {
	return w.client.Close()
}

func (w *Writer) countsKey(t time.Time) string {
	return w.stream + ":counts:" + t.UTC().Format("2006-01-02")
}

// parseRecord converts stream entry fields to a Record
func parseRecord(values map[string]interface{}) (sink.Record, error) {
	str := func(key string) string {
		s, _ := values[key].(string)
		return s
	}

	at, err := time.Parse(time.RFC3339Nano, str("time"))
	if err != nil {
		return sink.Record{}, fmt.Errorf("failed to parse time: %w", err)
	}

	var params event.Params
	if raw := str("params"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return sink.Record{}, fmt.Errorf("failed to parse params: %w", err)
		}
	}

	return sink.Record{
		Page:          str("page"),
		MeasurementID: str("measurement_id"),
		Name:          str("event"),
		Params:        params,
		Time:          at,
	}, nil
}
