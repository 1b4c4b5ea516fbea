package model

// PeriodTotals are the raw aggregates read from the ledger for one period.
type PeriodTotals struct {
	PaidCount      int64
	PendingCount   int64
	TotalCollected int64
	TotalFines     int64
}

type Statistics struct {
	TotalMembers   int64  `json:"total_members"`
	PaidCount      int64  `json:"paid_count"`
	PendingCount   int64  `json:"pending_count"`
	UnpaidCount    int64  `json:"unpaid_count"`
	TotalCollected int64  `json:"total_collected"`
	TotalFines     int64  `json:"total_fines"`
	PaymentRate    string `json:"payment_rate"`
}

type PeriodStatistics struct {
	Period     *PeriodSummary `json:"period"`
	Statistics Statistics     `json:"statistics"`
}
