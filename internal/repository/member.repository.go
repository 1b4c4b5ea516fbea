package repository

import (
	"context"

	"github.com/nimasrn/cash-ledger/pkg/pg"
)

type MemberRepository struct {
	*pg.DB
}

func NewMemberRepository(db *pg.DB) *MemberRepository {
	return &MemberRepository{
		db,
	}
}

// Count returns the number of registered users across the organization.
func (r *MemberRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&MemberEntity{}).
		Count(&count).
		Error
	return count, err
}
