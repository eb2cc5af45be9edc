package domain

import "github.com/shopspring/decimal"

type Bank struct {
	ID             int64
	Name           string
	TotalTransfers int64
}

// Transfer moves amount from source to target and counts the transfer.
// Nothing is mutated when the amount is not positive or source cannot cover it.
// Source and target may be the same account.
func (b *Bank) Transfer(source, target *Account, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := source.Debit(amount); err != nil {
		return err
	}
	target.Credit(amount)
	b.TotalTransfers++
	return nil
}
