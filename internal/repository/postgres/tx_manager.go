package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
	"ledger/internal/repository/banks_repo"
	"ledger/internal/repository/outbox_repo"
)

// TxManager opens units of work backed by a single *sql.Tx. Writable units
// lock every row they read with SELECT ... FOR UPDATE.
type TxManager struct {
	db          *sql.DB
	accountRepo accounts_repo.AccountRepository
	bankRepo    banks_repo.BankRepository
	outboxRepo  outbox_repo.OutboxRepository
}

func NewTxManager(
	db *sql.DB,
	accountRepo accounts_repo.AccountRepository,
	bankRepo banks_repo.BankRepository,
	outboxRepo outbox_repo.OutboxRepository,
) *TxManager {
	return &TxManager{
		db:          db,
		accountRepo: accountRepo,
		bankRepo:    bankRepo,
		outboxRepo:  outboxRepo,
	}
}

func (m *TxManager) Begin(ctx context.Context, readOnly bool) (domain.UnitOfWork, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	uow := &unitOfWork{tx: tx}
	uow.accounts = &accountStore{tx: tx, repo: m.accountRepo, lock: !readOnly}
	uow.banks = &bankStore{tx: tx, repo: m.bankRepo, lock: !readOnly}
	uow.outbox = &outboxStore{tx: tx, repo: m.outboxRepo, lock: !readOnly}
	return uow, nil
}

type unitOfWork struct {
	tx       *sql.Tx
	accounts *accountStore
	banks    *bankStore
	outbox   *outboxStore
}

func (u *unitOfWork) Accounts() domain.AccountStore { return u.accounts }
func (u *unitOfWork) Banks() domain.BankStore       { return u.banks }
func (u *unitOfWork) Outbox() domain.OutboxStore    { return u.outbox }

func (u *unitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

type accountStore struct {
	tx   *sql.Tx
	repo accounts_repo.AccountRepository
	lock bool
}

func (s *accountStore) Get(ctx context.Context, id int64) (*domain.Account, error) {
	return s.repo.GetAccountTx(ctx, s.tx, id, s.lock)
}

func (s *accountStore) FindByPerson(ctx context.Context, person string) (*domain.Account, error) {
	return s.repo.FindByPersonTx(ctx, s.tx, person, s.lock)
}

func (s *accountStore) List(ctx context.Context) ([]domain.Account, error) {
	return s.repo.ListAccountsTx(ctx, s.tx)
}

func (s *accountStore) Put(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	stored := *account
	if stored.ID == 0 {
		id, err := s.repo.CreateAccountTx(ctx, s.tx, &stored)
		if err != nil {
			return nil, err
		}
		stored.ID = id
		return &stored, nil
	}
	if err := s.repo.UpdateAccountTx(ctx, s.tx, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *accountStore) Delete(ctx context.Context, id int64) error {
	return s.repo.DeleteAccountTx(ctx, s.tx, id)
}

type bankStore struct {
	tx   *sql.Tx
	repo banks_repo.BankRepository
	lock bool
}

func (s *bankStore) Get(ctx context.Context, id int64) (*domain.Bank, error) {
	return s.repo.GetBankTx(ctx, s.tx, id, s.lock)
}

func (s *bankStore) Put(ctx context.Context, bank *domain.Bank) (*domain.Bank, error) {
	stored := *bank
	if err := s.repo.UpdateBankTx(ctx, s.tx, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

type outboxStore struct {
	tx   *sql.Tx
	repo outbox_repo.OutboxRepository
	lock bool
}

func (s *outboxStore) Append(ctx context.Context, msg *domain.OutboxMessage) error {
	return s.repo.CreateMessageTx(ctx, s.tx, msg)
}

func (s *outboxStore) Pending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	return s.repo.GetPendingMessages(ctx, s.tx, limit, s.lock)
}

func (s *outboxStore) MarkSent(ctx context.Context, id string) error {
	return s.repo.UpdateMessageStatusTx(ctx, s.tx, id, domain.OutboxStatusSent)
}
