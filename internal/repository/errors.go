package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrPeriodNotFound      = errors.New("cash period not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateSubmission = errors.New("live transaction already exists for member and period")
	ErrStaleTransaction    = errors.New("transaction is no longer pending")
)

// isUniqueViolation covers drivers that translate the error and the ones
// that only report it in the message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
