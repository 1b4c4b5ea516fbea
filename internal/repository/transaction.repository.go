package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/cash-ledger/internal/model"
	"github.com/nimasrn/cash-ledger/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var liveStatuses = []string{
	string(model.TransactionStatusPending),
	string(model.TransactionStatusComplete),
}

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

// HasLive reports whether the member already has a PENDING or COMPLETE
// transaction for the period.
func (r *TransactionRepository) HasLive(ctx context.Context, memberID, periodID int64) (bool, error) {
	var count int64
	err := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("user_id = ? AND period_id = ? AND status IN ?", memberID, periodID, liveStatuses).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts the transaction. A collision on the live submission index
// is reported as ErrDuplicateSubmission.
func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSubmission
		}
		return nil, err
	}

	return toTransactionModel(entity), nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).WithContext(ctx).
		Preload("Period").
		Preload("Member").
		Preload("Verifier").
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

func (r *TransactionRepository) FindByIDForUpdate(ctx context.Context, id int64) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

// List returns one page of transactions matching the filter, newest payment
// first, with period, member and verifier attached.
func (r *TransactionRepository) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	offset := f.Normalize()

	filter := func(db *gorm.DB) *gorm.DB {
		if f.Status != nil {
			db = db.Where("status = ?", string(*f.Status))
		}
		if f.PeriodID != nil {
			db = db.Where("period_id = ?", *f.PeriodID)
		}
		if f.UserID != nil {
			db = db.Where("user_id = ?", *f.UserID)
		}
		return db
	}

	var total int64
	if err := r.Read(ctx).WithContext(ctx).Model(&TransactionEntity{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entities []*TransactionEntity
	err := r.Read(ctx).WithContext(ctx).
		Scopes(filter).
		Preload("Period").
		Preload("Member").
		Preload("Verifier").
		Order("payment_date DESC").
		Order("id DESC").
		Limit(f.Limit).
		Offset(offset).
		Find(&entities).
		Error
	if err != nil {
		return nil, 0, err
	}

	return toTransactionModels(entities), total, nil
}

// UpdateStatus moves a PENDING transaction to its final status. The write is
// conditional on the row still being PENDING.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id int64, status model.TransactionStatus, verifierID int64) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("id = ? AND status = ?", id, string(model.TransactionStatusPending)).
		Updates(map[string]any{
			"status":      string(status),
			"verifier_id": verifierID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleTransaction
	}
	return nil
}

type periodTotalsRow struct {
	PaidCount      int64
	PendingCount   int64
	TotalCollected int64
	TotalFines     int64
}

// SummarizePeriod aggregates the ledger for one period. Collected amounts and
// fines only count COMPLETE rows.
func (r *TransactionRepository) SummarizePeriod(ctx context.Context, periodID int64) (*model.PeriodTotals, error) {
	var row periodTotalsRow

	complete := string(model.TransactionStatusComplete)
	pending := string(model.TransactionStatusPending)

	err := r.Read(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Select(`
            COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)           AS paid_count,
            COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)           AS pending_count,
            COALESCE(SUM(CASE WHEN status = ? THEN amount_paid ELSE 0 END), 0) AS total_collected,
            COALESCE(SUM(CASE WHEN status = ? THEN fine_amount ELSE 0 END), 0) AS total_fines`,
			complete, pending, complete, complete).
		Where("period_id = ?", periodID).
		Scan(&row).
		Error
	if err != nil {
		return nil, err
	}

	return &model.PeriodTotals{
		PaidCount:      row.PaidCount,
		PendingCount:   row.PendingCount,
		TotalCollected: row.TotalCollected,
		TotalFines:     row.TotalFines,
	}, nil
}
