// Package kafka publishes turn events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/patchbay/pkg/eventstream"
)

// Publisher writes turn events to a Kafka topic as JSON messages. Messages
// are keyed by conversation id so turns from the same conversation stay
// ordered within a partition.
type Publisher struct {
	writer    *kafkago.Writer
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewPublisher creates a Kafka-backed eventstream publisher for the given
// brokers and topic.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}

	if topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}

	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &Publisher{writer: writer}, nil
}

// PublishTurn marshals the event and writes it to the configured topic.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnRecordedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	if p.closed.Load() {
		return eventstream.ErrPublisherClosed
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling turn event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(messageKey(event)),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing turn event: %w", err)
	}

	return nil
}

// Close flushes pending writes and releases the underlying writer. It is
// safe to call more than once.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.closeErr = p.writer.Close()
	})

	return p.closeErr
}

// messageKey picks the partition key for an event: the conversation id when
// present, otherwise the event id.
func messageKey(event *eventstream.TurnRecordedEvent) string {
	if event.Transcript.ConversationID != "" {
		return event.Transcript.ConversationID
	}

	return event.EventID
}
