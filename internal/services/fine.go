package services

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// MaxPaymentDrift bounds how far a payment date may lie from the due date.
const MaxPaymentDrift = 100 * 365 * day

// ComputeFine returns the late fee for a payment. Any started day past the
// due date counts as a full day, so paying one minute late costs one day.
// The result saturates at math.MaxInt64.
func ComputeFine(paymentDate, dueDate time.Time, lateFeePerDay int64) int64 {
	if lateFeePerDay <= 0 || !paymentDate.After(dueDate) {
		return 0
	}
	late := paymentDate.Sub(dueDate)
	days := int64(late / day)
	if late%day != 0 {
		days++
	}
	if days > math.MaxInt64/lateFeePerDay {
		return math.MaxInt64
	}
	return days * lateFeePerDay
}

// paymentDateInRange reports whether paid lies within MaxPaymentDrift of due.
func paymentDateInRange(paid, due time.Time) bool {
	return !paid.Before(due.Add(-MaxPaymentDrift)) && !paid.After(due.Add(MaxPaymentDrift))
}
