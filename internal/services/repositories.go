package services

import (
	"context"

	"github.com/nimasrn/cash-ledger/internal/model"
)

type PeriodRepository interface {
	List(ctx context.Context, active *bool) ([]*model.Period, error)
	FindByID(ctx context.Context, id int64) (*model.Period, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*model.Period, error)
	Create(ctx context.Context, period *model.Period) (*model.Period, error)
	Update(ctx context.Context, id int64, patch model.PeriodPatch) (*model.Period, error)
	Delete(ctx context.Context, id int64) error
	CountTransactions(ctx context.Context, id int64) (int64, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TransactionRepository interface {
	HasLive(ctx context.Context, memberID, periodID int64) (bool, error)
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	FindByID(ctx context.Context, id int64) (*model.Transaction, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*model.Transaction, error)
	List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) // results, totalCount
	UpdateStatus(ctx context.Context, id int64, status model.TransactionStatus, verifierID int64) error
	SummarizePeriod(ctx context.Context, periodID int64) (*model.PeriodTotals, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type MemberRepository interface {
	Count(ctx context.Context) (int64, error)
}
