package banks_repo

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/domain"
)

type bankRepository struct{}

func NewBankRepository() *bankRepository {
	return &bankRepository{}
}

func (r *bankRepository) GetBankTx(ctx context.Context, querier domain.Querier, id int64, forUpdate bool) (*domain.Bank, error) {
	query := `
		SELECT id, name, total_transfers
		FROM banks
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	bank := &domain.Bank{}
	err := querier.QueryRowContext(ctx, query, id).Scan(&bank.ID, &bank.Name, &bank.TotalTransfers)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrBankNotFound
		}
		return nil, fmt.Errorf("failed to get bank %d: %w", id, err)
	}
	return bank, nil
}

func (r *bankRepository) UpdateBankTx(ctx context.Context, querier domain.Querier, bank *domain.Bank) error {
	query := `
		UPDATE banks
		SET name = $1, total_transfers = $2
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, bank.Name, bank.TotalTransfers, bank.ID)
	if err != nil {
		return fmt.Errorf("failed to update bank %d: %w", bank.ID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrBankNotFound
	}
	return nil
}
