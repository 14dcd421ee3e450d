// Package kafka delivers audit events to a Kafka topic using franz-go.
// Delivery is fire-and-forget: audit fan-out must never block submissions,
// and the durable store remains the source of truth.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"verifyd/pkg/platform/audit"
)

type Sink struct {
	client *kgo.Client
	topic  string
}

// NewSink connects to the brokers and returns a sink producing to topic.
func NewSink(brokers []string, topic string) (*Sink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Sink{client: client, topic: topic}, nil
}

func (s *Sink) Deliver(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.CertificateID.String()),
		Value: payload,
	}
	s.client.Produce(ctx, record, nil)
	return nil
}

// Close flushes pending records and releases the client.
func (s *Sink) Close(ctx context.Context) error {
	if err := s.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush kafka producer: %w", err)
	}
	s.client.Close()
	return nil
}
