package repository

import (
	"time"

	"github.com/nimasrn/cash-ledger/internal/model"
)

// MemberEntity maps the users table. The user module owns it; this
// package only reads from it.
type MemberEntity struct {
	ID         int64     `db:"id"          gorm:"primaryKey;autoIncrement;column:id"`
	Name       string    `db:"name"        gorm:"column:name;not null"`
	Email      string    `db:"email"       gorm:"column:email;not null;uniqueIndex"`
	Position   string    `db:"position"    gorm:"column:position"`
	DivisionID *int64    `db:"division_id" gorm:"column:division_id"`
	CreatedAt  time.Time `db:"created_at"  gorm:"column:created_at;autoCreateTime"`
}

func (MemberEntity) TableName() string {
	return "users"
}

func toMemberSummary(e *MemberEntity) *model.MemberSummary {
	if e == nil {
		return nil
	}
	return &model.MemberSummary{
		ID:    e.ID,
		Name:  e.Name,
		Email: e.Email,
	}
}
