// Package kafka exports matched alerts to a Kafka topic for downstream
// consumers. The export is feature-flagged and best-effort: the notification
// path never depends on it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/noaa-alert-relay/internal/domain"
)

// matchedAlert is the serialized form published per matched alert.
type matchedAlert struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Event       string   `json:"event"`
	Details     string   `json:"details,omitempty"`
	Expires     string   `json:"expires,omitempty"`
	ExpiresUTC  int64    `json:"expires_utc"`
	URL         string   `json:"url"`
	FIPSCodes   []string `json:"fips_codes,omitempty"`
	UGCCodes    []string `json:"ugc_codes,omitempty"`
	CountyName  string   `json:"county_name"`
	CountyState string   `json:"county_state"`
	Batch       int64    `json:"batch"`
}

// Writer produces matched-alert messages to a Kafka topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured export topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// ExportMatches publishes the run's matched alerts in a single
// WriteMessages call. The alert ID keys the message, so downstream
// compacted topics keep one record per alert.
func (w *Writer) ExportMatches(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(alerts))
	for i, alert := range alerts {
		msg, err := serializeToMessage(alert)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(alert domain.Alert) (kafkago.Message, error) {
	data, err := json.Marshal(matchedAlert{
		ID:          alert.ID,
		Title:       alert.Title,
		Event:       alert.Event,
		Details:     alert.Details,
		Expires:     alert.Expires,
		ExpiresUTC:  alert.ExpiresUTC,
		URL:         alert.URL,
		FIPSCodes:   alert.FIPSCodes,
		UGCCodes:    alert.UGCCodes,
		CountyName:  alert.CountyName,
		CountyState: alert.CountyState,
		Batch:       alert.CreatedBatch,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize matched alert: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(alert.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(alert.Event)},
			{Key: "exported_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}, nil
}
