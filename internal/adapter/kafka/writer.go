package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/gfs-grid-etl/internal/config"
	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
)

// Writer produces completion events to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes completion events in a single
// WriteMessages call. Events for the same run share a partition.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.ConversionEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish completion events: %w", err)
	}
	w.logger.Debug("published completion events", "events", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ConversionEvent into a Kafka message keyed by run.
func serializeToMessage(event domain.ConversionEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize conversion event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Run),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "variable", Value: []byte(event.Variable)},
			{Key: "output_key", Value: []byte(event.OutputKey)},
			{Key: "converted_at", Value: []byte(event.ConvertedAt.Format(time.RFC3339))},
		},
	}, nil
}
