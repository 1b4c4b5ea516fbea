package services

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeFine(t *testing.T) {
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		paid     time.Time
		rate     int64
		expected int64
	}{
		{"paid early", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 1000, 0},
		{"paid on due instant", due, 1000, 0},
		{"five days late", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 1000, 5000},
		{"one minute late is a full day", due.Add(time.Minute), 1000, 1000},
		{"partial day rounds up", due.Add(49 * time.Hour), 500, 1500},
		{"no fee rate", time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputeFine(tt.paid, due, tt.rate))
		})
	}
}

func TestComputeFine_Properties(t *testing.T) {
	due := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for minutes := -3000; minutes <= 3000; minutes += 37 {
		paid := due.Add(time.Duration(minutes) * time.Minute)
		fine := ComputeFine(paid, due, 250)
		if paid.After(due) {
			assert.Positive(t, fine, "late payment at %s", paid)
			assert.Zero(t, fine%250)
		} else {
			assert.Zero(t, fine, "timely payment at %s", paid)
		}
		assert.Equal(t, fine, ComputeFine(paid, due, 250))
	}

	// Sub saturates at the maximum Duration a few centuries out
	for _, years := range []int{100, 291, 300, 376, 5000} {
		paid := due.AddDate(years, 0, 0)
		fine := ComputeFine(paid, due, 1000)
		assert.Positive(t, fine, "payment %d years late", years)
		assert.Zero(t, fine%1000)
	}
	assert.Equal(t, int64(math.MaxInt64), ComputeFine(due.AddDate(1, 0, 0), due, math.MaxInt64/2))
}

func TestPaymentDateInRange(t *testing.T) {
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	assert.True(t, paymentDateInRange(due, due))
	assert.True(t, paymentDateInRange(due.AddDate(50, 0, 0), due))
	assert.True(t, paymentDateInRange(due.AddDate(-50, 0, 0), due))
	assert.False(t, paymentDateInRange(due.AddDate(376, 0, 0), due))
	assert.False(t, paymentDateInRange(due.AddDate(-200, 0, 0), due))
}

func TestComputeFine_TimezoneIndependent(t *testing.T) {
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	jakarta := time.FixedZone("WIB", 7*3600)
	paid := time.Date(2024, 1, 12, 7, 0, 0, 0, jakarta) // 2024-01-12 00:00 UTC
	assert.Equal(t, int64(2000), ComputeFine(paid, due, 1000))
}
