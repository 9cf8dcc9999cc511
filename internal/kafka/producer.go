package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes opportunity events to Kafka, keyed by ticker
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
		now:    time.Now,
	}
}

// PublishOpportunityDetected publishes a newly persisted opportunity
func (p *Producer) PublishOpportunityDetected(ctx context.Context, opp *models.Opportunity) error {
	event := models.OpportunityEvent{
		EventType:   models.EventOpportunityDetected,
		Opportunity: opp,
		ID:          opp.ID,
		Ticker:      opp.Ticker,
		Status:      opp.Status,
		Timestamp:   p.now(),
	}
	return p.publish(ctx, opp.Ticker, event)
}

// PublishOpportunityStatusChanged publishes a lifecycle status change
func (p *Producer) PublishOpportunityStatusChanged(ctx context.Context, opp *models.Opportunity) error {
	event := models.OpportunityEvent{
		EventType: models.EventOpportunityStatusChanged,
		ID:        opp.ID,
		Ticker:    opp.Ticker,
		Status:    opp.Status,
		Timestamp: p.now(),
	}
	return p.publish(ctx, opp.Ticker, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.OpportunityEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
