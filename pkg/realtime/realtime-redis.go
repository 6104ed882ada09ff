package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBroker relays events through Redis pub/sub, so that several platform instances share subscribers.
type RedisBroker struct {
	rdb    *redis.Client
	logger logrus.FieldLogger
}

func NewRedisBroker(ctx context.Context, logger logrus.FieldLogger, addr string) (*RedisBroker, error) {
	var rdb = redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisBroker{rdb: rdb, logger: logger}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Topic(event.Table, event.RowId), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, table, rowId string) (*Subscription, error) {
	var topic = Topic(table, rowId)
	var pubsub = b.rdb.Subscribe(ctx, topic)

	// wait for the subscription confirmation so that no event published afterwards is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	var events = make(chan Event, subscriberBuffer)
	var done = make(chan struct{})
	go func() {
		defer close(events)
		var messages = pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case message, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(message.Payload), &event); err != nil {
					b.logger.WithError(err).WithField("topic", topic).Warn("discarding malformed event")
					continue
				}
				select {
				case events <- event:
				default:
					b.logger.WithField("topic", topic).Warn("dropping event for a slow subscriber")
				}
			}
		}
	}()

	return &Subscription{Events: events, close: func() {
		close(done)
		_ = pubsub.Close()
	}}, nil
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
