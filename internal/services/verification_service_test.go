package services

import (
	"context"
	"testing"

	"github.com/nimasrn/cash-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationService_Verify(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)
	ledgerSvc := NewTransactionService(l.periods, l.transactions, nil)
	svc := NewVerificationService(l.transactions)
	member := l.member(t, "alice")
	admin := l.member(t, "admin")
	period := l.period(t, 100000, 1000, date(2024, 1, 10), true)

	pending, err := ledgerSvc.Submit(ctx, model.SubmitRequest{
		MemberID:      member,
		PeriodID:      period.ID,
		PaymentMethod: model.PaymentMethodTransfer,
		PaymentDate:   ptr(date(2024, 1, 12)),
		ProofPath:     "/uploads/proofs/a.png",
	})
	require.NoError(t, err)
	require.Equal(t, int64(2000), pending.FineAmount)

	t.Run("invalid decision", func(t *testing.T) {
		_, err := svc.Verify(ctx, pending.ID, model.TransactionStatusPending, admin)
		assert.ErrorIs(t, err, ErrInvalidDecision)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		_, err := svc.Verify(ctx, 9999, model.TransactionStatusComplete, admin)
		assert.ErrorIs(t, err, ErrTransactionNotFound)
	})

	t.Run("pending becomes complete", func(t *testing.T) {
		verified, err := svc.Verify(ctx, pending.ID, model.TransactionStatusComplete, admin)
		require.NoError(t, err)
		assert.Equal(t, model.TransactionStatusComplete, verified.Status)
		require.NotNil(t, verified.VerifierID)
		assert.Equal(t, admin, *verified.VerifierID)
		require.NotNil(t, verified.Verifier)
		assert.Equal(t, "admin", verified.Verifier.Name)
		require.NotNil(t, verified.User)
		assert.Equal(t, "alice", verified.User.Name)
		assert.Equal(t, int64(2000), verified.FineAmount)
	})

	t.Run("terminal status cannot be verified again", func(t *testing.T) {
		other := l.member(t, "other-admin")
		_, err := svc.Verify(ctx, pending.ID, model.TransactionStatusRejected, other)
		assert.ErrorIs(t, err, ErrNotPending)

		current, err := l.transactions.FindByID(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, model.TransactionStatusComplete, current.Status)
		require.NotNil(t, current.VerifierID)
		assert.Equal(t, admin, *current.VerifierID)
	})
}

func TestVerificationService_VerifyReadsPrimary(t *testing.T) {
	ctx := context.Background()
	l := setupLaggingLedger(t)
	ledgerSvc := NewTransactionService(l.periods, l.transactions, nil)
	svc := NewVerificationService(l.transactions)
	member := l.member(t, "alice")
	admin := l.member(t, "admin")
	period := l.period(t, 100000, 0, date(2024, 1, 10), true)

	pending, err := ledgerSvc.Submit(ctx, model.SubmitRequest{
		MemberID:      member,
		PeriodID:      period.ID,
		PaymentMethod: model.PaymentMethodTransfer,
		PaymentDate:   ptr(date(2024, 1, 9)),
		ProofPath:     "/uploads/proofs/a.png",
	})
	require.NoError(t, err)

	verified, err := svc.Verify(ctx, pending.ID, model.TransactionStatusComplete, admin)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusComplete, verified.Status)
	require.NotNil(t, verified.VerifierID)
	assert.Equal(t, admin, *verified.VerifierID)
}
