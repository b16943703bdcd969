package events

import (
	"context"
	"fmt"
	"os"
)

// Sink names a Publisher implementation.
type Sink string

// Supported sinks.
const (
	SinkMemory Sink = "memory"
	SinkStdout Sink = "stdout"
	SinkKafka  Sink = "kafka"
	SinkRedis  Sink = "redis"
	SinkSQS    Sink = "sqs"
)

// SinkConfig selects and parameterizes a sink.
type SinkConfig struct {
	Sink         Sink
	KafkaBrokers []string
	KafkaTopic   string
	RedisURL     string
	RedisStream  string
	RedisMaxLen  int64
	SQS          SQSConfig
}

// Open constructs the sink named by cfg. An empty sink selects memory.
func Open(ctx context.Context, cfg SinkConfig) (Publisher, error) {
	switch cfg.Sink {
	case "", SinkMemory:
		return NewMemoryPublisher(), nil
	case SinkStdout:
		return NewWriterPublisher(os.Stdout), nil
	case SinkKafka:
		p, err := NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		return p, nil
	case SinkRedis:
		client, err := ConnectRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		p, err := NewRedisStreamPublisher(client, cfg.RedisStream, cfg.RedisMaxLen)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return p, nil
	case SinkSQS:
		p, err := NewSQSPublisher(ctx, cfg.SQS)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event sink %q", cfg.Sink)
	}
}
