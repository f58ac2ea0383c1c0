// Package events publishes screening decision events to Kafka so downstream
// services (extraction pipelines, dashboards) can react without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/screening-service/internal/domain"
)

// DecisionEvent is published after every committed screening decision.
type DecisionEvent struct {
	UnitID    uuid.UUID              `json:"unit_id"`
	Pass      domain.Pass            `json:"pass"`
	Origin    domain.Origin          `json:"origin"`
	Decision  domain.DecisionValue   `json:"decision"`
	State     domain.ScreeningState  `json:"state"`
	Codes     []domain.ExclusionCode `json:"codes,omitempty"`
	Domain    domain.DomainTag       `json:"domain,omitempty"`
	DecidedAt time.Time              `json:"decided_at"`
}

// NewDecisionEvent builds an event from a unit's newest history entry.
func NewDecisionEvent(unit *domain.ReviewUnit, entry domain.DecisionRecord) DecisionEvent {
	return DecisionEvent{
		UnitID:    unit.ID,
		Pass:      entry.Pass,
		Origin:    entry.Origin,
		Decision:  entry.Decision,
		State:     unit.State,
		Codes:     entry.ExclusionCodes,
		Domain:    entry.Domain,
		DecidedAt: entry.DecidedAt,
	}
}

// Publisher writes decision events to a Kafka topic. Events are keyed by unit
// ID so all decisions for a unit land on the same partition in order.
type Publisher struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// Config holds configuration for the decision publisher.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic for decision events.
	Topic string
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int
	// BatchTimeout is the maximum time to wait for a batch to fill.
	BatchTimeout time.Duration
}

// NewPublisher creates a new decision event publisher.
func NewPublisher(cfg Config, logger zerolog.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return &Publisher{
		writer: writer,
		logger: logger.With().Str("component", "decision_publisher").Logger(),
	}
}

// PublishDecision writes one decision event. Publishing is best effort from
// the committer's point of view: the decision is already durable in the store
// and a publish failure must not roll it back.
func (p *Publisher) PublishDecision(ctx context.Context, event DecisionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal decision event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UnitID.String()),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write decision event: %w", err)
	}

	p.logger.Debug().
		Str("unit_id", event.UnitID.String()).
		Int("pass", int(event.Pass)).
		Str("decision", string(event.Decision)).
		Msg("decision event published")
	return nil
}

// Close closes the Kafka writer.
func (p *Publisher) Close() error {
	p.logger.Info().Msg("closing decision publisher")
	return p.writer.Close()
}
