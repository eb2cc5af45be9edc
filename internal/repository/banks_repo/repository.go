package banks_repo

import (
	"context"

	"ledger/internal/domain"
)

type BankRepository interface {
	GetBankTx(ctx context.Context, querier domain.Querier, id int64, forUpdate bool) (*domain.Bank, error)
	UpdateBankTx(ctx context.Context, querier domain.Querier, bank *domain.Bank) error
}
