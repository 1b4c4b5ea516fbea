package services

import (
	"context"
	"errors"
	"strings"

	"github.com/nimasrn/cash-ledger/internal/model"
	"github.com/nimasrn/cash-ledger/internal/repository"
	"github.com/nimasrn/cash-ledger/pkg/logger"
	"github.com/nimasrn/cash-ledger/pkg/prom"
	perrors "github.com/pkg/errors"
)

// SubmissionLocker serializes submissions of one member for one period
// across API instances.
type SubmissionLocker interface {
	Acquire(ctx context.Context, memberID, periodID int64) (release func(), err error)
}

type TransactionService struct {
	periods      PeriodRepository
	transactions TransactionRepository
	guard        SubmissionLocker
}

// NewTransactionService builds the ledger service. guard may be nil, in
// which case only the database enforces uniqueness.
func NewTransactionService(periods PeriodRepository, transactions TransactionRepository, guard SubmissionLocker) *TransactionService {
	return &TransactionService{
		periods:      periods,
		transactions: transactions,
		guard:        guard,
	}
}

func (s *TransactionService) Submit(ctx context.Context, req model.SubmitRequest) (*model.Transaction, error) {
	req.ProofPath = strings.TrimSpace(req.ProofPath)
	if err := validateStruct(req); err != nil {
		prom.IncSubmissionRejected("validation")
		return nil, err
	}

	if s.guard != nil {
		release, err := s.guard.Acquire(ctx, req.MemberID, req.PeriodID)
		if err != nil {
			prom.IncSubmissionRejected("in_progress")
			return nil, err
		}
		defer release()
	}

	var created *model.Transaction
	err := s.transactions.WithinTransaction(ctx, func(ctx context.Context) error {
		period, err := s.periods.FindByIDForUpdate(ctx, req.PeriodID)
		if err != nil {
			return mapPeriodError(err, "lock period")
		}
		if !period.IsActive {
			return ErrPeriodInactive
		}
		if !paymentDateInRange(*req.PaymentDate, period.DueDate) {
			return ErrPaymentDateRange
		}

		live, err := s.transactions.HasLive(ctx, req.MemberID, req.PeriodID)
		if err != nil {
			return perrors.Wrap(err, "check live transaction")
		}
		if live {
			return ErrAlreadySubmitted
		}

		if req.PaymentMethod == model.PaymentMethodTransfer && req.ProofPath == "" {
			return ErrProofRequired
		}

		txn := &model.Transaction{
			UserID:        req.MemberID,
			PeriodID:      period.ID,
			AmountPaid:    period.Amount,
			FineAmount:    ComputeFine(*req.PaymentDate, period.DueDate, period.LateFeePerDay),
			PaymentDate:   *req.PaymentDate,
			PaymentMethod: req.PaymentMethod,
			Status:        model.TransactionStatusPending,
		}
		if req.PaymentMethod == model.PaymentMethodCash {
			txn.Status = model.TransactionStatusComplete
		}
		if req.ProofPath != "" {
			proof := req.ProofPath
			txn.ProofImageURL = &proof
		}

		created, err = s.transactions.Create(ctx, txn)
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateSubmission) {
				return ErrAlreadySubmitted
			}
			return perrors.Wrap(err, "create transaction")
		}
		created.Period = period.Summary()
		return nil
	})
	if err != nil {
		prom.IncSubmissionRejected(rejectReason(err))
		return nil, err
	}

	prom.IncTransactionSubmitted(string(created.PaymentMethod), string(created.Status))
	prom.AddFineAssessed(string(created.PaymentMethod), created.FineAmount)
	logger.Info("cash transaction submitted",
		"transaction_id", created.ID,
		"member_id", created.UserID,
		"period_id", created.PeriodID,
		"status", created.Status,
		"fine_amount", created.FineAmount)

	return created, nil
}

// ListMine returns the member's own transactions. Any user filter on f is
// replaced by memberID.
func (s *TransactionService) ListMine(ctx context.Context, memberID int64, f model.TransactionFilter) (*model.TransactionPage, error) {
	f.UserID = &memberID
	return s.list(ctx, f)
}

func (s *TransactionService) ListAll(ctx context.Context, f model.TransactionFilter) (*model.TransactionPage, error) {
	return s.list(ctx, f)
}

func (s *TransactionService) list(ctx context.Context, f model.TransactionFilter) (*model.TransactionPage, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, validationError("status must be one of PENDING, COMPLETE, REJECTED")
	}
	if f.Page > model.MaxPage {
		return nil, ErrPageTooLarge
	}
	f.Normalize()

	items, total, err := s.transactions.List(ctx, f)
	if err != nil {
		return nil, perrors.Wrap(err, "list transactions")
	}
	return &model.TransactionPage{
		Items: items,
		Total: total,
		Page:  f.Page,
		Limit: f.Limit,
	}, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrPeriodNotFound):
		return "period_not_found"
	case errors.Is(err, ErrPeriodInactive):
		return "period_inactive"
	case errors.Is(err, ErrAlreadySubmitted):
		return "duplicate"
	case errors.Is(err, ErrProofRequired):
		return "proof_missing"
	case errors.Is(err, ErrPaymentDateRange):
		return "payment_date_range"
	}
	return "error"
}
