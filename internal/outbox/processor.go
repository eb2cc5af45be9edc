package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ledger/internal/domain"
	kafka_infra "ledger/internal/infrastructure/kafka"

	"go.uber.org/zap"
)

type Processor struct {
	txManager      domain.TxManager
	kafkaProducer  kafka_infra.Producer
	defaultTopic   string
	pollInterval   time.Duration
	pollTimeout    time.Duration
	batchSize      int
	logger         *zap.Logger
	shutdownSignal chan struct{}
	shutdownOnce   sync.Once
}

func NewProcessor(
	txManager domain.TxManager,
	kafkaProducer kafka_infra.Producer,
	defaultTopic string,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Processor {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Processor{
		txManager:      txManager,
		kafkaProducer:  kafkaProducer,
		defaultTopic:   defaultTopic,
		pollInterval:   pollInterval,
		pollTimeout:    pollTimeout,
		batchSize:      batchSize,
		logger:         logger,
		shutdownSignal: make(chan struct{}),
	}
}

// Start polls the outbox until ctx is cancelled or Stop is called.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor...")
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped: context done.")
			return
		case <-p.shutdownSignal:
			p.logger.Info("Outbox processor stopped: shutdown signal.")
			return
		case <-ticker.C:
			p.ProcessPending(ctx)
		}
	}
}

func (p *Processor) Stop() {
	p.shutdownOnce.Do(func() {
		p.logger.Info("Signaling outbox processor to stop...")
		close(p.shutdownSignal)
	})
}

// ProcessPending publishes one batch of pending messages and marks the
// published ones as sent. It returns the number of messages sent. No unit of
// work is open while the producer talks to the broker.
func (p *Processor) ProcessPending(ctx context.Context) int {
	p.logger.Debug("Polling for outbox messages...")

	messages, err := p.fetchPending(ctx)
	if err != nil {
		p.logger.Error("Failed to get pending outbox messages", zap.Error(err))
		return 0
	}
	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found.")
		return 0
	}

	p.logger.Info("Found pending outbox messages", zap.Int("count", len(messages)))

	published := make([]string, 0, len(messages))
	for _, msg := range messages {
		topic := msg.Topic
		if topic == "" {
			topic = p.defaultTopic
		}

		if err := p.kafkaProducer.Produce(ctx, msg.AggregateID, topic, msg.Payload); err != nil {
			p.logger.Error("Failed to send message to Kafka",
				zap.String("message_id", msg.ID),
				zap.String("topic", topic),
				zap.Error(err))
			continue
		}
		published = append(published, msg.ID)
	}
	if len(published) == 0 {
		return 0
	}

	sent, err := p.markSent(ctx, published)
	if err != nil {
		p.logger.Error("Failed to commit outbox status updates", zap.Error(err))
		return 0
	}

	p.logger.Info("Outbox batch processed", zap.Int("sent", sent), zap.Int("pending", len(messages)-sent))
	return sent
}

func (p *Processor) fetchPending(ctx context.Context) ([]domain.OutboxMessage, error) {
	uow, err := p.txManager.Begin(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to begin unit of work for outbox: %w", err)
	}
	defer uow.Rollback()

	pollCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()
	return uow.Outbox().Pending(pollCtx, p.batchSize)
}

// markSent flags ids as SENT in one unit of work. A message published by a
// previous round but not yet marked is published again, never lost.
func (p *Processor) markSent(ctx context.Context, ids []string) (int, error) {
	uow, err := p.txManager.Begin(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("failed to begin unit of work for outbox: %w", err)
	}
	defer uow.Rollback()

	sent := 0
	for _, id := range ids {
		if err := uow.Outbox().MarkSent(ctx, id); err != nil {
			p.logger.Error("Failed to update outbox message status to SENT", zap.String("message_id", id), zap.Error(err))
			continue
		}
		sent++
	}

	if err := uow.Commit(); err != nil {
		return 0, err
	}
	return sent, nil
}
