package accounts_repo

import (
	"context"

	"ledger/internal/domain"
)

type AccountRepository interface {
	CreateAccountTx(ctx context.Context, querier domain.Querier, account *domain.Account) (int64, error)
	GetAccountTx(ctx context.Context, querier domain.Querier, id int64, forUpdate bool) (*domain.Account, error)
	FindByPersonTx(ctx context.Context, querier domain.Querier, person string, forUpdate bool) (*domain.Account, error)
	ListAccountsTx(ctx context.Context, querier domain.Querier) ([]domain.Account, error)
	UpdateAccountTx(ctx context.Context, querier domain.Querier, account *domain.Account) error
	DeleteAccountTx(ctx context.Context, querier domain.Querier, id int64) error
}
