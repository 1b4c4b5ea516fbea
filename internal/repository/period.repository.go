package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/cash-ledger/internal/model"
	"github.com/nimasrn/cash-ledger/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PeriodRepository struct {
	*pg.DB
}

func NewPeriodRepository(db *pg.DB) *PeriodRepository {
	return &PeriodRepository{
		db,
	}
}

// List returns periods with the latest due date first. A nil active filter
// returns every period.
func (r *PeriodRepository) List(ctx context.Context, active *bool) ([]*model.Period, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&PeriodEntity{})
	if active != nil {
		q = q.Where("is_active = ?", *active)
	}

	var entities []*PeriodEntity
	if err := q.Order("due_date DESC").Order("id DESC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toPeriodModels(entities), nil
}

func (r *PeriodRepository) FindByID(ctx context.Context, id int64) (*model.Period, error) {
	return findPeriod(r.Read(ctx).WithContext(ctx), id)
}

func findPeriod(db *gorm.DB, id int64) (*model.Period, error) {
	var entity PeriodEntity
	err := db.
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeriodNotFound
		}
		return nil, err
	}
	return toPeriodModel(&entity), nil
}

// FindByIDForUpdate locks the period row until the surrounding transaction
// ends. It must be called with a ctx from pg.DB.WithinTransaction.
func (r *PeriodRepository) FindByIDForUpdate(ctx context.Context, id int64) (*model.Period, error) {
	var entity PeriodEntity
	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeriodNotFound
		}
		return nil, err
	}
	return toPeriodModel(&entity), nil
}

func (r *PeriodRepository) Create(ctx context.Context, period *model.Period) (*model.Period, error) {
	entity := toPeriodEntity(period)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toPeriodModel(entity), nil
}

// Update writes only the non-nil fields of the patch and returns the
// stored row.
func (r *PeriodRepository) Update(ctx context.Context, id int64, patch model.PeriodPatch) (*model.Period, error) {
	fields := map[string]any{}
	if patch.Name != nil {
		fields["name"] = *patch.Name
	}
	if patch.Amount != nil {
		fields["amount"] = *patch.Amount
	}
	if patch.LateFeePerDay != nil {
		fields["late_fee_per_day"] = *patch.LateFeePerDay
	}
	if patch.DueDate != nil {
		fields["due_date"] = *patch.DueDate
	}
	if patch.IsActive != nil {
		fields["is_active"] = *patch.IsActive
	}

	if len(fields) > 0 {
		fields["updated_at"] = time.Now()
		result := r.Write(ctx).WithContext(ctx).
			Model(&PeriodEntity{}).
			Where("id = ?", id).
			Updates(fields)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ErrPeriodNotFound
		}
	}

	// the primary already has the write, a replica may not
	return findPeriod(r.Write(ctx).WithContext(ctx), id)
}

func (r *PeriodRepository) Delete(ctx context.Context, id int64) error {
	result := r.Write(ctx).WithContext(ctx).
		Where("id = ?", id).
		Delete(&PeriodEntity{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

// CountTransactions counts ledger rows of any status that reference the period.
func (r *PeriodRepository) CountTransactions(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("period_id = ?", id).
		Count(&count).
		Error
	return count, err
}
