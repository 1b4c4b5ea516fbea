package repository

import (
	"time"

	"github.com/nimasrn/cash-ledger/internal/model"
)

type TransactionEntity struct {
	ID            int64     `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	UserID        int64     `db:"user_id"         gorm:"column:user_id;not null;index"`
	PeriodID      int64     `db:"period_id"       gorm:"column:period_id;not null;index"`
	VerifierID    *int64    `db:"verifier_id"     gorm:"column:verifier_id"`
	AmountPaid    int64     `db:"amount_paid"     gorm:"column:amount_paid;not null"`
	FineAmount    int64     `db:"fine_amount"     gorm:"column:fine_amount;not null;default:0"`
	PaymentDate   time.Time `db:"payment_date"    gorm:"column:payment_date;not null;index"`
	PaymentMethod string    `db:"payment_method"  gorm:"column:payment_method;not null"`
	ProofImageURL *string   `db:"proof_image_url" gorm:"column:proof_image_url"`
	Status        string    `db:"status"          gorm:"column:status;not null;index"`
	CreatedAt     time.Time `db:"created_at"      gorm:"column:created_at;autoCreateTime"`

	Period   *PeriodEntity `gorm:"foreignKey:PeriodID;references:ID;constraint:OnDelete:RESTRICT"`
	Member   *MemberEntity `gorm:"foreignKey:UserID;references:ID"`
	Verifier *MemberEntity `gorm:"foreignKey:VerifierID;references:ID"`
}

func (TransactionEntity) TableName() string {
	return "cash_transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:            m.ID,
		UserID:        m.UserID,
		PeriodID:      m.PeriodID,
		VerifierID:    m.VerifierID,
		AmountPaid:    m.AmountPaid,
		FineAmount:    m.FineAmount,
		PaymentDate:   m.PaymentDate,
		PaymentMethod: string(m.PaymentMethod),
		ProofImageURL: m.ProofImageURL,
		Status:        string(m.Status),
		CreatedAt:     m.CreatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	m := &model.Transaction{
		ID:            e.ID,
		UserID:        e.UserID,
		PeriodID:      e.PeriodID,
		VerifierID:    e.VerifierID,
		AmountPaid:    e.AmountPaid,
		FineAmount:    e.FineAmount,
		PaymentDate:   e.PaymentDate,
		PaymentMethod: model.PaymentMethod(e.PaymentMethod),
		ProofImageURL: e.ProofImageURL,
		Status:        model.TransactionStatus(e.Status),
		CreatedAt:     e.CreatedAt,
		User:          toMemberSummary(e.Member),
		Verifier:      toMemberSummary(e.Verifier),
	}
	if e.Period != nil {
		m.Period = toPeriodModel(e.Period).Summary()
	}
	return m
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
