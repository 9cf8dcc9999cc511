// Package kafka publishes opportunity events and ingests transactions
// recorded by upstream brokers.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/earnings-opportunity-service/internal/database"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

// TransactionRepository defines the persistence the consumer needs
type TransactionRepository interface {
	TransactionExistsByExternalID(ctx context.Context, externalID string) (bool, error)
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	GetOpportunityByID(ctx context.Context, id int64) (*models.Opportunity, error)
	UpdateOpportunityStatus(ctx context.Context, id int64, status string) (*models.Opportunity, error)
}

// StatusPublisher announces opportunity status changes
type StatusPublisher interface {
	PublishOpportunityStatusChanged(ctx context.Context, opp *models.Opportunity) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer ingests TRANSACTION_RECORDED events into the transactions table.
// Events are deduplicated by external id, so redelivery is harmless.
type Consumer struct {
	reader    messageReader
	repo      TransactionRepository
	publisher StatusPublisher
	topic     string
	now       func() time.Time
	log       zerolog.Logger
}

// ConsumerOption configures a Consumer
type ConsumerOption func(*Consumer)

// WithStatusPublisher publishes the traded status of linked opportunities
func WithStatusPublisher(p StatusPublisher) ConsumerOption {
	return func(c *Consumer) {
		c.publisher = p
	}
}

// NewConsumer creates a new Kafka consumer for transaction events
func NewConsumer(brokers []string, topic, groupID string, repo TransactionRepository, log zerolog.Logger, opts ...ConsumerOption) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return newConsumer(reader, topic, repo, log, opts...)
}

func newConsumer(reader messageReader, topic string, repo TransactionRepository, log zerolog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader: reader,
		repo:   repo,
		topic:  topic,
		now:    time.Now,
		log:    log.With().Str("component", "transaction_consumer").Str("topic", topic).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start consumes messages until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info().Msg("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.log.Error().Err(err).Msg("Error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.log.Error().Err(err).
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("Error processing message")
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	c.log.Debug().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Str("key", string(msg.Key)).
		Msg("Received message")

	var event models.TransactionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal transaction event: %w", err)
	}

	if event.EventType != models.EventTransactionRecorded {
		c.log.Debug().Str("event_type", event.EventType).Msg("Ignoring event")
		return nil
	}

	externalID := event.Data.ExternalID
	if externalID != "" {
		exists, err := c.repo.TransactionExistsByExternalID(ctx, externalID)
		if err != nil {
			return fmt.Errorf("failed to check for duplicate transaction: %w", err)
		}
		if exists {
			c.log.Debug().Str("external_id", externalID).Msg("Transaction already recorded, skipping")
			return nil
		}
	}

	txn, err := c.convertEvent(event)
	if err != nil {
		return fmt.Errorf("failed to convert transaction event: %w", err)
	}

	if err := c.repo.CreateTransaction(ctx, txn); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	c.log.Info().
		Int64("id", txn.ID).
		Str("holder_id", txn.HolderID).
		Str("instrument_id", txn.InstrumentID).
		Str("direction", txn.Direction).
		Str("quantity", txn.Quantity.String()).
		Str("unit_price", txn.UnitPrice.String()).
		Msg("Recorded transaction")

	if txn.OpportunityID != nil && txn.IsBuy() {
		c.markTraded(ctx, txn)
	}
	return nil
}

// markTraded is best effort; the transaction is already stored. The linked
// opportunity must belong to the same holder and ticker as the buy.
func (c *Consumer) markTraded(ctx context.Context, txn *models.Transaction) {
	id := *txn.OpportunityID
	log := c.log.With().Int64("opportunity_id", id).Int64("transaction_id", txn.ID).Logger()

	linked, err := c.repo.GetOpportunityByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		log.Warn().Msg("Linked opportunity not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load linked opportunity")
		return
	}
	if linked.HolderID != txn.HolderID || !strings.EqualFold(linked.Ticker, txn.InstrumentID) {
		log.Warn().
			Str("opportunity_holder_id", linked.HolderID).
			Str("opportunity_ticker", linked.Ticker).
			Str("holder_id", txn.HolderID).
			Str("instrument_id", txn.InstrumentID).
			Msg("Linked opportunity belongs to another holder or ticker, not marking traded")
		return
	}

	opp, err := c.repo.UpdateOpportunityStatus(ctx, id, models.OpportunityTraded)
	if errors.Is(err, database.ErrNotFound) {
		log.Warn().Msg("Linked opportunity not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to mark opportunity traded")
		return
	}
	if c.publisher != nil {
		if err := c.publisher.PublishOpportunityStatusChanged(ctx, opp); err != nil {
			log.Warn().Err(err).Msg("Failed to publish status change")
		}
	}
}

func (c *Consumer) convertEvent(event models.TransactionEvent) (*models.Transaction, error) {
	data := event.Data

	if data.HolderID == "" || data.InstrumentID == "" {
		return nil, fmt.Errorf("holder_id and instrument_id are required")
	}

	direction := strings.ToLower(data.Direction)
	if !models.ValidDirection(direction) {
		return nil, fmt.Errorf("invalid direction: %s", data.Direction)
	}

	accountClass := strings.ToLower(data.AccountClass)
	if accountClass == "" {
		accountClass = models.AccountTaxable
	}
	if !models.ValidAccountClass(accountClass) {
		return nil, fmt.Errorf("invalid account class: %s", data.AccountClass)
	}

	quantity, err := decimal.NewFromString(data.Quantity)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %s: %w", data.Quantity, err)
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("quantity must be positive: %s", data.Quantity)
	}

	price, err := decimal.NewFromString(data.UnitPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid unit price %s: %w", data.UnitPrice, err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("unit price must be positive: %s", data.UnitPrice)
	}

	effective := c.now()
	if data.EffectiveDate != nil && *data.EffectiveDate != "" {
		effective, err = parseEffectiveDate(*data.EffectiveDate)
		if err != nil {
			return nil, err
		}
	}

	return &models.Transaction{
		ExternalID:    data.ExternalID,
		HolderID:      data.HolderID,
		InstrumentID:  strings.ToUpper(data.InstrumentID),
		AccountClass:  accountClass,
		Direction:     direction,
		Quantity:      quantity,
		UnitPrice:     price,
		EffectiveDate: effective,
		Note:          data.Note,
		OpportunityID: data.OpportunityID,
	}, nil
}

var effectiveDateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseEffectiveDate(s string) (time.Time, error) {
	for _, layout := range effectiveDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid effective date: %s", s)
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
