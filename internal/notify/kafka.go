package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/soochol/salesconnect/internal/audit"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes audit events as JSON, keyed by organization so one
// organization's events stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, e audit.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.OrganizationID),
		Value: data,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(e.Action)},
			{Key: "resource_type", Value: []byte(e.ResourceType)},
		},
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
