package services

import (
	"errors"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	}
	return "unknown"
}

// DomainError is a failure the caller can act on. Anything else coming out
// of a service is a storage or infrastructure failure.
type DomainError struct {
	Kind   Kind
	Msg    string
	Fields map[string]string
}

func (e *DomainError) Error() string {
	return e.Msg
}

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == e.Msg
}

func validationError(msg string) *DomainError {
	return &DomainError{Kind: KindValidation, Msg: msg}
}

func notFoundError(msg string) *DomainError {
	return &DomainError{Kind: KindNotFound, Msg: msg}
}

func conflictError(msg string) *DomainError {
	return &DomainError{Kind: KindConflict, Msg: msg}
}

var (
	ErrPeriodNotFound       = notFoundError("cash period not found")
	ErrPeriodInactive       = conflictError("this cash period is no longer active")
	ErrPeriodInUse          = conflictError("cannot delete period with existing transactions")
	ErrPeriodIDRequired     = validationError("period ID is required")
	ErrPeriodNameEmpty      = validationError("name cannot be empty")
	ErrAlreadySubmitted     = conflictError("payment for this period has already been submitted")
	ErrSubmissionInProgress = conflictError("a payment submission for this period is already in progress")
	ErrProofRequired        = validationError("payment proof is required for transfer payments")
	ErrPaymentDateRange     = validationError("payment_date must be within 100 years of the period due date")
	ErrPageTooLarge         = validationError("page is too large")
	ErrTransactionNotFound  = notFoundError("transaction not found")
	ErrInvalidDecision      = validationError("status must be either COMPLETE or REJECTED")
	ErrNotPending           = conflictError("only pending transactions can be verified")
	ErrProofTooLarge        = validationError("payment proof must not exceed 5MB")
	ErrProofType            = validationError("only .png, .jpg, .jpeg and .webp images are allowed")
	ErrProofEmpty           = validationError("payment proof is empty")
)

// KindOf returns the kind of a DomainError in err's chain, or 0.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}
