package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferCompletedEvent is published after a transfer has been committed.
type TransferCompletedEvent struct {
	TransferID      string          `json:"transfer_id"`
	BankID          int64           `json:"bank_id"`
	SourceAccountID int64           `json:"source_account_id"`
	TargetAccountID int64           `json:"target_account_id"`
	Amount          decimal.Decimal `json:"amount"`
	TotalTransfers  int64           `json:"total_transfers"`
	Timestamp       time.Time       `json:"timestamp"`
}
