package observe

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisEventSink_Publishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, DefaultEventChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sink, err := NewRedisEventSink(client, "", nil)
	if err != nil {
		t.Fatalf("NewRedisEventSink() error = %v", err)
	}
	sink.Dispatch(ctx, Event{Kind: EventStale, Key: "user:9", Latency: 3 * time.Millisecond, Tags: []string{"users"}})

	select {
	case msg := <-sub.Channel():
		got, err := DecodeEvent([]byte(msg.Payload))
		if err != nil {
			t.Fatalf("DecodeEvent() error = %v", err)
		}
		if got.Kind != EventStale || got.Key != "user:9" || got.Latency != 3*time.Millisecond {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
}

func TestNewRedisEventSink_NilClient(t *testing.T) {
	if _, err := NewRedisEventSink(nil, "", nil); err != ErrNilClient {
		t.Fatalf("err = %v, want ErrNilClient", err)
	}
}
