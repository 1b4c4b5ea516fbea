package services

import (
	"context"
	"fmt"

	"github.com/nimasrn/cash-ledger/internal/model"
	"github.com/nimasrn/cash-ledger/pkg/logger"
	perrors "github.com/pkg/errors"
)

type StatisticsService struct {
	periods      PeriodRepository
	transactions TransactionRepository
	members      MemberRepository
}

func NewStatisticsService(periods PeriodRepository, transactions TransactionRepository, members MemberRepository) *StatisticsService {
	return &StatisticsService{
		periods:      periods,
		transactions: transactions,
		members:      members,
	}
}

// Get computes the collection report of one period. total_members counts
// every registered user, not only those expected to pay the period.
func (s *StatisticsService) Get(ctx context.Context, periodID int64) (*model.PeriodStatistics, error) {
	if periodID == 0 {
		return nil, ErrPeriodIDRequired
	}

	period, err := s.periods.FindByID(ctx, periodID)
	if err != nil {
		return nil, mapPeriodError(err, "get period")
	}

	totalMembers, err := s.members.Count(ctx)
	if err != nil {
		return nil, perrors.Wrap(err, "count members")
	}

	totals, err := s.transactions.SummarizePeriod(ctx, periodID)
	if err != nil {
		return nil, perrors.Wrap(err, "summarize period")
	}

	unpaid := totalMembers - totals.PaidCount - totals.PendingCount
	if unpaid < 0 {
		logger.Warn("unpaid count is negative",
			"period_id", periodID,
			"total_members", totalMembers,
			"paid_count", totals.PaidCount,
			"pending_count", totals.PendingCount)
	}

	return &model.PeriodStatistics{
		Period: period.Summary(),
		Statistics: model.Statistics{
			TotalMembers:   totalMembers,
			PaidCount:      totals.PaidCount,
			PendingCount:   totals.PendingCount,
			UnpaidCount:    unpaid,
			TotalCollected: totals.TotalCollected,
			TotalFines:     totals.TotalFines,
			PaymentRate:    paymentRate(totals.PaidCount, totalMembers),
		},
	}, nil
}

func paymentRate(paid, total int64) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(paid)/float64(total)*100)
}
