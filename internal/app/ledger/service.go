package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger/internal/domain"
	"ledger/internal/outbox"
	"ledger/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type LedgerService interface {
	FindAll(ctx context.Context) ([]domain.Account, error)
	FindByID(ctx context.Context, id int64) (*domain.Account, error)
	FindByPerson(ctx context.Context, person string) (*domain.Account, error)
	Save(ctx context.Context, account *domain.Account) (*domain.Account, error)
	DeleteByID(ctx context.Context, id int64) error
	GetTotalTransfers(ctx context.Context, bankID int64) (int64, error)
	GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

type ledgerService struct {
	txManager domain.TxManager
	opts      Options
	logger    *zap.Logger
}

func NewLedgerService(txManager domain.TxManager, opts Options, logger *zap.Logger) LedgerService {
	return &ledgerService{
		txManager: txManager,
		opts:      opts,
		logger:    logger,
	}
}

func (s *ledgerService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if !req.Amount.IsPositive() {
		s.logger.Warn("Transfer rejected: non-positive amount", zap.String("amount", req.Amount.String()))
		return nil, domain.ErrInvalidAmount
	}
	if req.SourceAccountID == req.TargetAccountID && !s.opts.AllowSelfTransfer {
		s.logger.Warn("Transfer rejected: source and target are the same account", zap.Int64("account_id", req.SourceAccountID))
		return nil, domain.ErrSameAccount
	}

	uow, err := s.txManager.Begin(ctx, false)
	if err != nil {
		s.logger.Error("Failed to begin unit of work for transfer", zap.Error(err))
		return nil, fmt.Errorf("failed to begin unit of work: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered panic during transfer, rolling back", zap.Any("panic", r))
			uow.Rollback()
			panic(r)
		}
	}()

	result, err := s.transferTx(ctx, uow, req)
	if err != nil {
		s.logTransferFailure(req, err)
		if rbErr := uow.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transfer", zap.Error(rbErr))
			return nil, fmt.Errorf("rollback failed after transfer error (%v): %w", err, rbErr)
		}
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		s.logger.Error("Failed to commit transfer", zap.Error(err))
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}

	s.logger.Info("Transfer completed",
		zap.String("transfer_id", result.TransferID),
		zap.Int64("bank_id", req.BankID),
		zap.Int64("source_account_id", req.SourceAccountID),
		zap.Int64("target_account_id", req.TargetAccountID),
		zap.String("amount", req.Amount.String()),
		zap.Int64("total_transfers", result.TotalTransfers))
	return result, nil
}

// transferTx loads every entity before the first write, so a missing
// account or bank and an uncovered amount all fail with zero writes.
func (s *ledgerService) transferTx(ctx context.Context, uow domain.UnitOfWork, req TransferRequest) (*TransferResult, error) {
	source, target, err := loadTransferAccounts(ctx, uow.Accounts(), req.SourceAccountID, req.TargetAccountID)
	if err != nil {
		return nil, err
	}

	bank, err := uow.Banks().Get(ctx, req.BankID)
	if err != nil {
		return nil, fmt.Errorf("bank %d: %w", req.BankID, err)
	}

	if err := bank.Transfer(source, target, req.Amount); err != nil {
		return nil, err
	}

	if _, err := uow.Accounts().Put(ctx, source); err != nil {
		return nil, fmt.Errorf("failed to store source account %d: %w", source.ID, err)
	}
	if _, err := uow.Accounts().Put(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to store target account %d: %w", target.ID, err)
	}
	if _, err := uow.Banks().Put(ctx, bank); err != nil {
		return nil, fmt.Errorf("failed to store bank %d: %w", bank.ID, err)
	}

	result := &TransferResult{
		TransferID:      util.GenerateUUID(),
		BankID:          bank.ID,
		SourceAccountID: source.ID,
		TargetAccountID: target.ID,
		Amount:          req.Amount,
		TotalTransfers:  bank.TotalTransfers,
		CompletedAt:     time.Now().UTC(),
	}

	if s.opts.EventsTopic != "" {
		msg, err := outbox.NewTransferCompletedMessage(domain.TransferCompletedEvent{
			TransferID:      result.TransferID,
			BankID:          result.BankID,
			SourceAccountID: result.SourceAccountID,
			TargetAccountID: result.TargetAccountID,
			Amount:          result.Amount,
			TotalTransfers:  result.TotalTransfers,
			Timestamp:       result.CompletedAt,
		}, s.opts.EventsTopic)
		if err != nil {
			return nil, err
		}
		if err := uow.Outbox().Append(ctx, msg); err != nil {
			return nil, fmt.Errorf("failed to append transfer event: %w", err)
		}
	}

	return result, nil
}

// loadTransferAccounts reads the two accounts in ascending ID order so that
// concurrent transfers acquire row locks in the same order. When both IDs are
// equal a single instance is returned for both sides.
func loadTransferAccounts(ctx context.Context, accounts domain.AccountStore, sourceID, targetID int64) (*domain.Account, *domain.Account, error) {
	if sourceID == targetID {
		account, err := accounts.Get(ctx, sourceID)
		if err != nil {
			return nil, nil, fmt.Errorf("source account %d: %w", sourceID, err)
		}
		return account, account, nil
	}

	firstID, secondID := sourceID, targetID
	if firstID > secondID {
		firstID, secondID = secondID, firstID
	}
	first, err := accounts.Get(ctx, firstID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s account %d: %w", side(firstID, sourceID), firstID, err)
	}
	second, err := accounts.Get(ctx, secondID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s account %d: %w", side(secondID, sourceID), secondID, err)
	}
	if firstID == sourceID {
		return first, second, nil
	}
	return second, first, nil
}

func side(id, sourceID int64) string {
	if id == sourceID {
		return "source"
	}
	return "target"
}

func (s *ledgerService) logTransferFailure(req TransferRequest, err error) {
	fields := []zap.Field{
		zap.Int64("bank_id", req.BankID),
		zap.Int64("source_account_id", req.SourceAccountID),
		zap.Int64("target_account_id", req.TargetAccountID),
		zap.String("amount", req.Amount.String()),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		s.logger.Warn("Transfer rejected: insufficient balance", fields...)
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Warn("Transfer rejected: entity not found", fields...)
	default:
		s.logger.Error("Transfer failed, rolling back", fields...)
	}
}

func (s *ledgerService) FindAll(ctx context.Context) ([]domain.Account, error) {
	var accounts []domain.Account
	err := s.read(ctx, func(uow domain.UnitOfWork) error {
		var err error
		accounts, err = uow.Accounts().List(ctx)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to list accounts", zap.Error(err))
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (s *ledgerService) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	var account *domain.Account
	err := s.read(ctx, func(uow domain.UnitOfWork) error {
		var err error
		account, err = uow.Accounts().Get(ctx, id)
		return err
	})
	if err != nil {
		s.logger.Warn("Failed to get account", zap.Int64("account_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get account %d: %w", id, err)
	}
	return account, nil
}

func (s *ledgerService) FindByPerson(ctx context.Context, person string) (*domain.Account, error) {
	var account *domain.Account
	err := s.read(ctx, func(uow domain.UnitOfWork) error {
		var err error
		account, err = uow.Accounts().FindByPerson(ctx, person)
		return err
	})
	if err != nil {
		s.logger.Warn("Failed to find account by person", zap.String("person", person), zap.Error(err))
		return nil, fmt.Errorf("failed to find account for %s: %w", person, err)
	}
	return account, nil
}

func (s *ledgerService) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	account, err := s.FindByID(ctx, accountID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return account.Balance, nil
}

func (s *ledgerService) GetTotalTransfers(ctx context.Context, bankID int64) (int64, error) {
	var bank *domain.Bank
	err := s.read(ctx, func(uow domain.UnitOfWork) error {
		var err error
		bank, err = uow.Banks().Get(ctx, bankID)
		return err
	})
	if err != nil {
		s.logger.Warn("Failed to get bank", zap.Int64("bank_id", bankID), zap.Error(err))
		return 0, fmt.Errorf("failed to get bank %d: %w", bankID, err)
	}
	return bank.TotalTransfers, nil
}

func (s *ledgerService) Save(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}

	uow, err := s.txManager.Begin(ctx, false)
	if err != nil {
		s.logger.Error("Failed to begin unit of work for save", zap.Error(err))
		return nil, fmt.Errorf("failed to begin unit of work: %w", err)
	}
	defer uow.Rollback()

	stored, err := uow.Accounts().Put(ctx, account)
	if err != nil {
		s.logger.Warn("Failed to store account", zap.String("person", account.Person), zap.Error(err))
		return nil, fmt.Errorf("failed to store account: %w", err)
	}

	if err := uow.Commit(); err != nil {
		s.logger.Error("Failed to commit account save", zap.Int64("account_id", stored.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to commit account save: %w", err)
	}

	s.logger.Info("Account stored", zap.Int64("account_id", stored.ID), zap.String("person", stored.Person), zap.String("balance", stored.Balance.String()))
	return stored, nil
}

func (s *ledgerService) DeleteByID(ctx context.Context, id int64) error {
	uow, err := s.txManager.Begin(ctx, false)
	if err != nil {
		s.logger.Error("Failed to begin unit of work for delete", zap.Error(err))
		return fmt.Errorf("failed to begin unit of work: %w", err)
	}
	defer uow.Rollback()

	if err := uow.Accounts().Delete(ctx, id); err != nil {
		s.logger.Warn("Failed to delete account", zap.Int64("account_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete account %d: %w", id, err)
	}

	if err := uow.Commit(); err != nil {
		s.logger.Error("Failed to commit account delete", zap.Int64("account_id", id), zap.Error(err))
		return fmt.Errorf("failed to commit account delete: %w", err)
	}

	s.logger.Info("Account deleted", zap.Int64("account_id", id))
	return nil
}

func (s *ledgerService) read(ctx context.Context, fn func(uow domain.UnitOfWork) error) error {
	uow, err := s.txManager.Begin(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to begin read-only unit of work: %w", err)
	}
	defer uow.Rollback()
	return fn(uow)
}
