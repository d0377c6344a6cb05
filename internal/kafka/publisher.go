// Package kafka publishes timer transition events for downstream consumers
// (analytics, notifications). Publishing is best-effort: the timer engine
// treats a failed publish as a log line, not a failed transition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
	"github.com/Anjos3/agente-seguimiento/pkg/retry"
)

const EventsTopic = "task.events"

// eventEnvelope is the wire shape on the task.events topic.
type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	TaskID    string           `json:"task_id"`
	OwnerID   string           `json:"owner_id"`
	TaskName  string           `json:"task_name"`
	Type      domain.EventType `json:"type"`
	Status    domain.Status    `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
}

// Publisher implements timer.Publisher on a kafka-go writer.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka publisher connected to the given brokers.
func NewPublisher(brokers []string, logger *slog.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        EventsTopic,
		Balancer:     &kafka.Hash{}, // route by key → all events of a task stay ordered
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		// Auto-create topics if they don't exist
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishEvent writes one ledger entry to the events topic, keyed by task id.
func (p *Publisher) PublishEvent(ctx context.Context, task *domain.Task, ev *domain.TaskEvent) error {
	payload, err := json.Marshal(eventEnvelope{
		EventID:   ev.ID,
		TaskID:    ev.TaskID,
		OwnerID:   task.OwnerID,
		TaskName:  task.Name,
		Type:      ev.Type,
		Status:    task.Status,
		Timestamp: ev.OccurredAt,
		Metadata:  ev.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	err = retry.Do(ctx, retry.Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		OnRetry: func(attempt int, err error) {
			p.logger.Warn("kafka publish retry",
				slog.Int("attempt", attempt),
				slog.String("task_id", ev.TaskID),
				slog.String("error", err.Error()),
			)
		},
	}, func() error {
		return p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(ev.TaskID),
			Value: payload,
			Time:  ev.OccurredAt,
		})
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", EventsTopic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
