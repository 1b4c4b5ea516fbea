package services

import (
	"context"
	"errors"

	"github.com/nimasrn/cash-ledger/internal/model"
	"github.com/nimasrn/cash-ledger/internal/repository"
	"github.com/nimasrn/cash-ledger/pkg/logger"
	"github.com/nimasrn/cash-ledger/pkg/prom"
	perrors "github.com/pkg/errors"
)

type VerificationService struct {
	transactions TransactionRepository
}

func NewVerificationService(transactions TransactionRepository) *VerificationService {
	return &VerificationService{
		transactions: transactions,
	}
}

// Verify resolves a PENDING transaction to COMPLETE or REJECTED. Only the
// status and verifier change; the fine stays as assessed at submission.
func (s *VerificationService) Verify(ctx context.Context, transactionID int64, decision model.TransactionStatus, verifierID int64) (*model.Transaction, error) {
	if !decision.Decision() {
		return nil, ErrInvalidDecision
	}

	var updated *model.Transaction
	err := s.transactions.WithinTransaction(ctx, func(ctx context.Context) error {
		current, err := s.transactions.FindByIDForUpdate(ctx, transactionID)
		if err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return ErrTransactionNotFound
			}
			return perrors.Wrap(err, "lock transaction")
		}
		if current.Status != model.TransactionStatusPending {
			return ErrNotPending
		}

		err = s.transactions.UpdateStatus(ctx, transactionID, decision, verifierID)
		if err != nil {
			if errors.Is(err, repository.ErrStaleTransaction) {
				return ErrNotPending
			}
			return perrors.Wrap(err, "update transaction status")
		}

		// read back on the transaction, replicas may lag behind the commit
		updated, err = s.transactions.FindByID(ctx, transactionID)
		if err != nil {
			return perrors.Wrap(err, "reload transaction")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	prom.IncTransactionVerified(string(decision))
	logger.Info("cash transaction verified",
		"transaction_id", transactionID,
		"status", decision,
		"verifier_id", verifierID)

	return updated, nil
}
