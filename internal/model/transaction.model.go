package model

import (
	"math"
	"time"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCash || m == PaymentMethodTransfer
}

type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "PENDING"
	TransactionStatusComplete TransactionStatus = "COMPLETE"
	TransactionStatusRejected TransactionStatus = "REJECTED"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusComplete, TransactionStatusRejected:
		return true
	}
	return false
}

// Decision reports whether s is a terminal status an admin may set.
func (s TransactionStatus) Decision() bool {
	return s == TransactionStatusComplete || s == TransactionStatusRejected
}

type Transaction struct {
	ID            int64             `json:"id"`
	UserID        int64             `json:"user_id"`
	PeriodID      int64             `json:"period_id"`
	VerifierID    *int64            `json:"verifier_id"`
	AmountPaid    int64             `json:"amount_paid"`
	FineAmount    int64             `json:"fine_amount"`
	PaymentDate   time.Time         `json:"payment_date"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	ProofImageURL *string           `json:"proof_image_url"`
	Status        TransactionStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`

	Period   *PeriodSummary `json:"period,omitempty"`
	User     *MemberSummary `json:"user,omitempty"`
	Verifier *MemberSummary `json:"verifier,omitempty"`
}

// SubmitRequest is the input of a payment submission. ProofPath is the
// stored location of an already accepted proof image, if any.
type SubmitRequest struct {
	MemberID      int64         `json:"-"              validate:"required"`
	PeriodID      int64         `json:"period_id"      validate:"required"`
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=CASH TRANSFER"`
	PaymentDate   *time.Time    `json:"payment_date"   validate:"required"`
	ProofPath     string        `json:"-"`
}

type VerifyRequest struct {
	Status TransactionStatus `json:"status"`
}

// TransactionFilter controls List queries.
type TransactionFilter struct {
	Status   *TransactionStatus
	PeriodID *int64
	UserID   *int64
	Page     int // default 1
	Limit    int // default 10, max 100
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100

	// MaxPage keeps the row offset within an int32.
	MaxPage = math.MaxInt32 / MaxPageLimit
)

// Normalize applies the paging defaults and returns the row offset. Page is
// clamped to [1, MaxPage].
func (f *TransactionFilter) Normalize() int {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return (f.Page - 1) * f.Limit
}

type TransactionPage struct {
	Items []*Transaction
	Total int64
	Page  int
	Limit int
}
