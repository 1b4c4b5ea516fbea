package model

import "time"

type Period struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Amount        int64     `json:"amount"`
	LateFeePerDay int64     `json:"late_fee_per_day"`
	DueDate       time.Time `json:"due_date"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PeriodSummary is the slice of a period embedded in transaction listings.
type PeriodSummary struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Amount        int64     `json:"amount"`
	DueDate       time.Time `json:"due_date"`
	LateFeePerDay int64     `json:"late_fee_per_day"`
}

func (p *Period) Summary() *PeriodSummary {
	if p == nil {
		return nil
	}
	return &PeriodSummary{
		ID:            p.ID,
		Name:          p.Name,
		Amount:        p.Amount,
		DueDate:       p.DueDate,
		LateFeePerDay: p.LateFeePerDay,
	}
}

type PeriodCreateRequest struct {
	Name          string     `json:"name"             validate:"required"`
	Amount        *int64     `json:"amount"           validate:"required,gte=0"`
	LateFeePerDay *int64     `json:"late_fee_per_day" validate:"omitempty,gte=0"`
	DueDate       *time.Time `json:"due_date"         validate:"required"`
}

// PeriodPatch carries one pointer per updatable field. A nil field is left
// unchanged; a non-nil field is written, zero values included.
type PeriodPatch struct {
	Name          *string    `json:"name"             validate:"omitempty,min=1"`
	Amount        *int64     `json:"amount"           validate:"omitempty,gte=0"`
	LateFeePerDay *int64     `json:"late_fee_per_day" validate:"omitempty,gte=0"`
	DueDate       *time.Time `json:"due_date"`
	IsActive      *bool      `json:"is_active"`
}

func (p PeriodPatch) Empty() bool {
	return p.Name == nil && p.Amount == nil && p.LateFeePerDay == nil && p.DueDate == nil && p.IsActive == nil
}
