package accounts_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ledger/internal/domain"

	"github.com/lib/pq"
)

const foreignKeyViolation = "23503"

type accountRepository struct{}

func NewAccountRepository() *accountRepository {
	return &accountRepository{}
}

func (r *accountRepository) CreateAccountTx(ctx context.Context, querier domain.Querier, account *domain.Account) (int64, error) {
	query := `
		INSERT INTO accounts (person, balance, bank_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	var id int64
	err := querier.QueryRowContext(ctx, query, account.Person, account.Balance, nullBankID(account.BankID)).Scan(&id)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return 0, domain.ErrBankNotFound
		}
		return 0, fmt.Errorf("failed to create account for %s: %w", account.Person, err)
	}
	return id, nil
}

func (r *accountRepository) GetAccountTx(ctx context.Context, querier domain.Querier, id int64, forUpdate bool) (*domain.Account, error) {
	query := `
		SELECT id, person, balance, bank_id
		FROM accounts
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	account, err := scanAccount(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account %d: %w", id, err)
	}
	return account, nil
}

func (r *accountRepository) FindByPersonTx(ctx context.Context, querier domain.Querier, person string, forUpdate bool) (*domain.Account, error) {
	query := `
		SELECT id, person, balance, bank_id
		FROM accounts
		WHERE person = $1
		ORDER BY id
		LIMIT 1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	account, err := scanAccount(querier.QueryRowContext(ctx, query, person))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account for %s: %w", person, err)
	}
	return account, nil
}

func (r *accountRepository) ListAccountsTx(ctx context.Context, querier domain.Querier) ([]domain.Account, error) {
	query := `
		SELECT id, person, balance, bank_id
		FROM accounts
		ORDER BY id
	`
	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

func (r *accountRepository) UpdateAccountTx(ctx context.Context, querier domain.Querier, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET person = $1, balance = $2, bank_id = $3
		WHERE id = $4
	`
	res, err := querier.ExecContext(ctx, query, account.Person, account.Balance, nullBankID(account.BankID), account.ID)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return domain.ErrBankNotFound
		}
		return fmt.Errorf("failed to update account %d: %w", account.ID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) DeleteAccountTx(ctx context.Context, querier domain.Querier, id int64) error {
	res, err := querier.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account %d: %w", id, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	account := &domain.Account{}
	var bankID sql.NullInt64
	if err := row.Scan(&account.ID, &account.Person, &account.Balance, &bankID); err != nil {
		return nil, err
	}
	if bankID.Valid {
		account.BankID = &bankID.Int64
	}
	return account, nil
}

func nullBankID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
