package observe

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultEventChannel is the pub/sub channel used by RedisEventSink.
const DefaultEventChannel = "cachepipe:events"

// RedisEventSink publishes msgpack-encoded events on a Redis pub/sub channel
// so other processes can observe resolution outcomes.
type RedisEventSink struct {
	client  redis.UniversalClient
	channel string
	timeout time.Duration
	logger  Logger
}

// NewRedisEventSink creates a sink publishing on channel (DefaultEventChannel when empty).
func NewRedisEventSink(client redis.UniversalClient, channel string, logger Logger) (*RedisEventSink, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &RedisEventSink{
		client:  client,
		channel: channel,
		timeout: time.Second,
		logger:  OrNop(logger),
	}, nil
}

// Dispatch publishes event. Failures are logged, never returned.
func (s *RedisEventSink) Dispatch(ctx context.Context, event Event) {
	data, err := msgpack.Marshal(event)
	if err != nil {
		s.logger.Warn(ctx, "observe.event.encode_failed", F("key", event.Key), Err(err))
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.client.Publish(pctx, s.channel, data).Err(); err != nil {
		s.logger.Warn(ctx, "observe.event.publish_failed", F("key", event.Key), Err(err))
	}
}

// DecodeEvent decodes a payload published by RedisEventSink.
func DecodeEvent(payload []byte) (Event, error) {
	var e Event
	err := msgpack.Unmarshal(payload, &e)
	return e, err
}

var _ EventSink = (*RedisEventSink)(nil)
