package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransferRequest struct {
	BankID          int64
	SourceAccountID int64
	TargetAccountID int64
	Amount          decimal.Decimal
}

type TransferResult struct {
	TransferID      string
	BankID          int64
	SourceAccountID int64
	TargetAccountID int64
	Amount          decimal.Decimal
	TotalTransfers  int64
	CompletedAt     time.Time
}

type Options struct {
	// AllowSelfTransfer counts a transfer whose source and target are the
	// same account. When false such a request fails with ErrSameAccount.
	AllowSelfTransfer bool
	// EventsTopic enables transfer.completed outbox messages when non-empty.
	EventsTopic string
}
