package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")
var ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)
var ErrBankNotFound = fmt.Errorf("bank %w", ErrNotFound)
var ErrInsufficientBalance = errors.New("insufficient balance")
var ErrInvalidAmount = errors.New("amount must be greater than zero")
var ErrSameAccount = errors.New("source and target accounts must differ")
var ErrInvalidAccount = errors.New("invalid account")

// Account is a single ledger account. ID is zero until the account is stored.
type Account struct {
	ID      int64
	Person  string
	Balance decimal.Decimal
	BankID  *int64
}

func NewAccount(person string, balance decimal.Decimal) *Account {
	return &Account{Person: person, Balance: balance}
}

// Debit subtracts amount from the balance. The balance is left untouched
// when the result would be negative.
func (a *Account) Debit(amount decimal.Decimal) error {
	newBalance := a.Balance.Sub(amount)
	if newBalance.IsNegative() {
		return ErrInsufficientBalance
	}
	a.Balance = newBalance
	return nil
}

func (a *Account) Credit(amount decimal.Decimal) {
	a.Balance = a.Balance.Add(amount)
}

// Equal reports whether both accounts belong to the same person and hold the
// same balance. ID and bank are not compared. Balances compare numerically,
// so 1000 and 1000.00 are equal even though their scales differ.
func (a *Account) Equal(other *Account) bool {
	if a == nil || other == nil {
		return false
	}
	if a.Person == "" || other.Person == "" {
		return false
	}
	return a.Person == other.Person && a.Balance.Equal(other.Balance)
}

func (a *Account) Validate() error {
	if a.Person == "" {
		return fmt.Errorf("%w: person is required", ErrInvalidAccount)
	}
	if a.Balance.IsNegative() {
		return fmt.Errorf("%w: balance cannot be negative", ErrInvalidAccount)
	}
	return nil
}
