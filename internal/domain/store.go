package domain

import (
	"context"
	"database/sql"
	"errors"
)

var ErrReadOnly = errors.New("unit of work is read-only")

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type AccountStore interface {
	Get(ctx context.Context, id int64) (*Account, error)
	FindByPerson(ctx context.Context, person string) (*Account, error)
	List(ctx context.Context) ([]Account, error)
	// Put stores the account and returns the stored copy. An account with a
	// zero ID is inserted and gets a new ID.
	Put(ctx context.Context, account *Account) (*Account, error)
	Delete(ctx context.Context, id int64) error
}

type BankStore interface {
	Get(ctx context.Context, id int64) (*Bank, error)
	Put(ctx context.Context, bank *Bank) (*Bank, error)
}

type OutboxStore interface {
	Append(ctx context.Context, msg *OutboxMessage) error
	Pending(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkSent(ctx context.Context, id string) error
}

// UnitOfWork groups store operations that commit or roll back together.
// Rollback after Commit is a no-op, so it is safe to defer.
type UnitOfWork interface {
	Accounts() AccountStore
	Banks() BankStore
	Outbox() OutboxStore
	Commit() error
	Rollback() error
}

type TxManager interface {
	Begin(ctx context.Context, readOnly bool) (UnitOfWork, error)
}
