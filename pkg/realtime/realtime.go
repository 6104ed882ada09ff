/*
Package realtime fans row change events out to subscribers. The platform publishes an event whenever a profile row
changes; clients follow a single row through a server-sent events stream.
*/
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	Update = "UPDATE"
	Delete = "DELETE"
)

// Event describes a change to one row of a table. Row holds the new row for updates.
type Event struct {
	Table string          `json:"table"`
	Type  string          `json:"type"`
	RowId string          `json:"row_id"`
	Row   json.RawMessage `json:"row,omitempty"`
}

// Topic is the channel name shared by publishers and subscribers of a row.
func Topic(table, rowId string) string {
	return fmt.Sprintf("realtime:%s:%s", table, rowId)
}

// Broker delivers events to the subscribers of their row.
type Broker interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, table, rowId string) (*Subscription, error)
}

// Subscription streams the events of one row until closed. Close is idempotent.
type Subscription struct {
	Events <-chan Event
	once   sync.Once
	close  func()
}

func (s *Subscription) Close() {
	s.once.Do(s.close)
}

// subscriberBuffer is how many events a slow subscriber may lag behind before events get dropped.
const subscriberBuffer = 16

// MemoryBroker is an in-process Broker, suited to a single platform instance.
type MemoryBroker struct {
	mu     sync.Mutex
	topics map[string]map[chan Event]struct{}
	logger logrus.FieldLogger
}

func NewMemoryBroker(logger logrus.FieldLogger) *MemoryBroker {
	return &MemoryBroker{topics: make(map[string]map[chan Event]struct{}), logger: logger}
}

// Publish never blocks: subscribers whose buffers are full miss the event.
func (b *MemoryBroker) Publish(_ context.Context, event Event) error {
	var topic = Topic(event.Table, event.RowId)
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel := range b.topics[topic] {
		select {
		case channel <- event:
		default:
			b.logger.WithField("topic", topic).Warn("dropping event for a slow subscriber")
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, table, rowId string) (*Subscription, error) {
	var topic = Topic(table, rowId)
	var channel = make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[chan Event]struct{})
	}
	b.topics[topic][channel] = struct{}{}
	b.mu.Unlock()

	return &Subscription{Events: channel, close: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.topics[topic], channel)
		if len(b.topics[topic]) == 0 {
			delete(b.topics, topic)
		}
		close(channel)
	}}, nil
}

// Subscribers counts the live subscriptions of a row.
func (b *MemoryBroker) Subscribers(table, rowId string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[Topic(table, rowId)])
}
