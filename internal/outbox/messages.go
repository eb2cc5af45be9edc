package outbox

import (
	"encoding/json"
	"fmt"
	"strconv"

	"ledger/internal/domain"
	"ledger/internal/util"
)

// NewTransferCompletedMessage wraps the event into a pending outbox message
// keyed by the source account.
func NewTransferCompletedMessage(event domain.TransferCompletedEvent, topic string) (*domain.OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer completed event: %w", err)
	}
	return &domain.OutboxMessage{
		ID:          util.GenerateUUID(),
		AggregateID: strconv.FormatInt(event.SourceAccountID, 10),
		MessageType: domain.MessageTypeTransferCompleted,
		Topic:       topic,
		Payload:     payload,
		Status:      domain.OutboxStatusPending,
		CreatedAt:   event.Timestamp,
	}, nil
}
