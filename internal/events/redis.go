package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"datamarket/pkg/domain"

	"github.com/redis/go-redis/v9"
)

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamPublisher appends events to a Redis stream with XADD.
type RedisStreamPublisher struct {
	client streamAdder
	closer func() error
	stream string
	maxLen int64
}

// ConnectRedis initializes a client from a redis:// URL or host:port.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// NewRedisStreamPublisher publishes to stream through client. A positive
// maxLen trims the stream approximately to that many entries.
func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64) (*RedisStreamPublisher, error) {
	if stream == "" {
		return nil, fmt.Errorf("redis publisher requires a stream")
	}
	p := newRedisStreamPublisher(client, stream, maxLen)
	p.closer = client.Close
	return p, nil
}

func newRedisStreamPublisher(client streamAdder, stream string, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish implements Publisher.
func (p *RedisStreamPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"id":        event.ID,
			"sequence":  strconv.FormatUint(event.Sequence, 10),
			"type":      string(event.Type),
			"record_id": event.RecordID,
			"payload":   string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Close closes the underlying client when the publisher owns it.
func (p *RedisStreamPublisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
