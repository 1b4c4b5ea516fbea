package repository

import (
	"time"

	"github.com/nimasrn/cash-ledger/internal/model"
)

type PeriodEntity struct {
	ID            int64     `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	Name          string    `db:"name"             gorm:"column:name;not null"`
	Amount        int64     `db:"amount"           gorm:"column:amount;not null"`
	LateFeePerDay int64     `db:"late_fee_per_day" gorm:"column:late_fee_per_day;not null;default:0"`
	DueDate       time.Time `db:"due_date"         gorm:"column:due_date;not null;index"`
	IsActive      bool      `db:"is_active"        gorm:"column:is_active;not null"`
	CreatedAt     time.Time `db:"created_at"       gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `db:"updated_at"       gorm:"column:updated_at;autoUpdateTime"`
}

func (PeriodEntity) TableName() string {
	return "cash_periods"
}

func toPeriodEntity(m *model.Period) *PeriodEntity {
	if m == nil {
		return nil
	}
	return &PeriodEntity{
		ID:            m.ID,
		Name:          m.Name,
		Amount:        m.Amount,
		LateFeePerDay: m.LateFeePerDay,
		DueDate:       m.DueDate,
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toPeriodModel(e *PeriodEntity) *model.Period {
	if e == nil {
		return nil
	}
	return &model.Period{
		ID:            e.ID,
		Name:          e.Name,
		Amount:        e.Amount,
		LateFeePerDay: e.LateFeePerDay,
		DueDate:       e.DueDate,
		IsActive:      e.IsActive,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func toPeriodModels(entities []*PeriodEntity) []*model.Period {
	models := make([]*model.Period, len(entities))
	for i, e := range entities {
		models[i] = toPeriodModel(e)
	}
	return models
}
