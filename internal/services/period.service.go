package services

import (
	"context"
	"errors"
	"strings"

	"github.com/nimasrn/cash-ledger/internal/model"
	"github.com/nimasrn/cash-ledger/internal/repository"
	perrors "github.com/pkg/errors"
)

type PeriodService struct {
	periods PeriodRepository
}

func NewPeriodService(periods PeriodRepository) *PeriodService {
	return &PeriodService{
		periods: periods,
	}
}

func (s *PeriodService) List(ctx context.Context, active *bool) ([]*model.Period, error) {
	periods, err := s.periods.List(ctx, active)
	if err != nil {
		return nil, perrors.Wrap(err, "list periods")
	}
	return periods, nil
}

func (s *PeriodService) Get(ctx context.Context, id int64) (*model.Period, error) {
	period, err := s.periods.FindByID(ctx, id)
	if err != nil {
		return nil, mapPeriodError(err, "get period")
	}
	return period, nil
}

func (s *PeriodService) Create(ctx context.Context, req model.PeriodCreateRequest) (*model.Period, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	p := &model.Period{
		Name:     req.Name,
		Amount:   *req.Amount,
		DueDate:  *req.DueDate,
		IsActive: true,
	}
	if req.LateFeePerDay != nil {
		p.LateFeePerDay = *req.LateFeePerDay
	}

	created, err := s.periods.Create(ctx, p)
	if err != nil {
		return nil, perrors.Wrap(err, "create period")
	}
	return created, nil
}

// Update applies the present fields of patch. An empty patch returns the
// period unchanged.
func (s *PeriodService) Update(ctx context.Context, id int64, patch model.PeriodPatch) (*model.Period, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, ErrPeriodNameEmpty
		}
		patch.Name = &name
	}
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	if patch.Empty() {
		return s.Get(ctx, id)
	}

	updated, err := s.periods.Update(ctx, id, patch)
	if err != nil {
		return nil, mapPeriodError(err, "update period")
	}
	return updated, nil
}

// Delete removes a period that no transaction references. The count and the
// delete share one database transaction with the period row locked.
func (s *PeriodService) Delete(ctx context.Context, id int64) error {
	return s.periods.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.periods.FindByIDForUpdate(ctx, id); err != nil {
			return mapPeriodError(err, "lock period")
		}

		count, err := s.periods.CountTransactions(ctx, id)
		if err != nil {
			return perrors.Wrap(err, "count period transactions")
		}
		if count > 0 {
			return ErrPeriodInUse
		}

		if err := s.periods.Delete(ctx, id); err != nil {
			return mapPeriodError(err, "delete period")
		}
		return nil
	})
}

func mapPeriodError(err error, op string) error {
	if errors.Is(err, repository.ErrPeriodNotFound) {
		return ErrPeriodNotFound
	}
	return perrors.Wrap(err, op)
}
