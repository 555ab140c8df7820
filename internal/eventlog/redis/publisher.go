// Package redis appends dispatch lifecycle events to a Redis stream so that
// other processes can follow completions as they happen.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/switchboard/internal/observability"
)

const publishTimeout = 2 * time.Second

// Config contains Redis stream settings. An empty address disables the sink.
type Config struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"             envDefault:"0"`
	Stream   string `env:"REDIS_STREAM"         envDefault:"switchboard:events"`
	MaxLen   int64  `env:"REDIS_STREAM_MAX_LEN" envDefault:"10000"`
}

// Enabled reports whether a Redis address is configured.
func (c *Config) Enabled() bool {
	return c != nil && c.Addr != ""
}

// NewClient creates a Redis client from the config.
func NewClient(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Publisher writes events with XADD, trimming the stream to roughly MaxLen
// entries.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewPublisher creates a new Redis stream publisher.
func NewPublisher(client *redis.Client, cfg *Config) *Publisher {
	return &Publisher{
		client: client,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
	}
}

// Publish appends one entry. Failures are logged and never reach the caller;
// a lost event must not fail the request that produced it.
func (p *Publisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) {
	logger := observability.FromContext(ctx)

	payload, err := json.Marshal(data)
	if err != nil {
		logger.Warn("failed to encode event", observability.String("event", eventType), observability.Error(err))
		return
	}

	// The request context is often already done when a stream finishes.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = p.client.XAdd(writeCtx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: Values(ctx, eventType, payload),
	}).Err()
	if err != nil {
		logger.Warn("failed to append event to stream",
			observability.String("stream", p.stream),
			observability.String("event", eventType),
			observability.Error(err),
		)
	}
}

// Values builds the field map of one stream entry.
func Values(ctx context.Context, eventType string, payload []byte) map[string]interface{} {
	values := map[string]interface{}{
		"type": eventType,
		"data": string(payload),
		"ts":   time.Now().UnixMilli(),
	}
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		values["request_id"] = requestID
	}
	if traceID := observability.GetTraceID(ctx); traceID != "" {
		values["trace_id"] = traceID
	}
	return values
}

// Close closes the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
