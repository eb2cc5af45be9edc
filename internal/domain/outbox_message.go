package domain

import "time"

type OutboxMessageStatus string

const (
	OutboxStatusPending OutboxMessageStatus = "PENDING"
	OutboxStatusSent    OutboxMessageStatus = "SENT"
)

const MessageTypeTransferCompleted = "transfer.completed"

// OutboxMessage is an event written in the same transaction as the change it
// describes and published to Kafka afterwards.
type OutboxMessage struct {
	ID          string
	AggregateID string
	MessageType string
	Topic       string
	Payload     []byte
	Status      OutboxMessageStatus
	CreatedAt   time.Time
	SentAt      *time.Time
}
