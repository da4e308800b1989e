// Package kafka publishes the processed merged table to a Kafka topic for
// downstream consumers (the dashboard ingests it alongside the SQLite
// artifact). Publishing is feature-flagged; the pipeline works without it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/gridpulse/demand-weather-etl/internal/domain"
)

const dayLayout = "2006-01-02"

// Publisher produces merged records to the configured topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the merged-records topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishMerged serializes and publishes the run's merged records in a
// single WriteMessages call. Keys are city|date so replays of the same
// window compact cleanly.
func (p *Publisher) PublishMerged(ctx context.Context, runID string, records []domain.MergedRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("serialize merged record: %w", err)
		}
		msgs[i] = kafkago.Message{
			Key:   []byte(r.City + "|" + r.Date.Format(dayLayout)),
			Value: data,
			Headers: []kafkago.Header{
				{Key: "run_id", Value: []byte(runID)},
			},
		}
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
