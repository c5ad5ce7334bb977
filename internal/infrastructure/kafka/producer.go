package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event is the envelope written to the topic. Consumers dispatch on
// Type before unmarshaling Data.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{writer: writer}
}

// Publish wraps data in an Event envelope, keyed so all events for
// one order land in one partition.
func (p *Producer) Publish(ctx context.Context, key, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      jsonData,
		Timestamp: time.Now(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.Timestamp,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
