// Package kafka publishes clinical audit events to a Kafka topic for
// external consumers (SIEM pipelines, long-term archival). Publishing is
// fire-and-forget fan-out: Postgres remains the system of record and a
// broker outage must never block or fail a clinical workflow.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"pagemd/internal/audit"
)

// Publisher produces audit events asynchronously via franz-go.
type Publisher struct {
	client *kgo.Client
	logger *slog.Logger
}

// payload is the wire format published to the topic. Field names are stable;
// downstream consumers deserialize by name.
type payload struct {
	ID          string `json:"id"`
	Action      string `json:"action"`
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id,omitempty"`
	PatientID   string `json:"patient_id,omitempty"`
	EncounterID string `json:"encounter_id,omitempty"`
	ActorUserID string `json:"actor_user_id,omitempty"`
	ActorRole   string `json:"actor_role,omitempty"`
	ClinicID    string `json:"clinic_id,omitempty"`
	IP          string `json:"ip,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// New connects a publisher to the given brokers and topic.
func New(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{client: client, logger: logger}, nil
}

// Publish produces one event without blocking the caller. Produce errors are
// logged from the delivery callback.
func (p *Publisher) Publish(event audit.Event) {
	body := payload{
		ID:          event.ID.String(),
		Action:      event.Action,
		EntityType:  event.EntityType,
		EntityID:    event.EntityID,
		PatientID:   event.PatientID,
		EncounterID: event.EncounterID,
		ActorRole:   event.ActorRole,
		IP:          event.IP,
		UserAgent:   event.UserAgent,
		RequestID:   event.RequestID,
		Details:     event.Details,
		CreatedAt:   event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if !event.ActorUserID.IsNil() {
		body.ActorUserID = event.ActorUserID.String()
	}
	if !event.ClinicID.IsNil() {
		body.ClinicID = event.ClinicID.String()
	}

	data, err := json.Marshal(body)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("audit kafka payload not serializable", "action", event.Action, "error", err)
		}
		return
	}

	record := &kgo.Record{Key: []byte(body.ClinicID), Value: data}
	p.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Error("audit kafka produce failed", "action", event.Action, "error", err)
		}
	})
}

// Close flushes pending records and releases the client.
func (p *Publisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}
