package services

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/cash-ledger/internal/model"
	"github.com/nimasrn/cash-ledger/internal/repository"
	"github.com/nimasrn/cash-ledger/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type ledger struct {
	db           *pg.DB
	raw          *gorm.DB
	periods      *repository.PeriodRepository
	transactions *repository.TransactionRepository
	members      *repository.MemberRepository
}

func openLedgerDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.AutoMigrate(db))
	return db
}

func setupLedger(t *testing.T) *ledger {
	db := openLedgerDB(t)
	return newLedger(pg.New(db, db), db)
}

// setupLaggingLedger reads from a replica that never sees the primary's writes.
func setupLaggingLedger(t *testing.T) *ledger {
	primary := openLedgerDB(t)
	return newLedger(pg.New(openLedgerDB(t), primary), primary)
}

func newLedger(pgDB *pg.DB, db *gorm.DB) *ledger {
	return &ledger{
		db:           pgDB,
		raw:          db,
		periods:      repository.NewPeriodRepository(pgDB),
		transactions: repository.NewTransactionRepository(pgDB),
		members:      repository.NewMemberRepository(pgDB),
	}
}

func (l *ledger) member(t *testing.T, name string) int64 {
	m := &repository.MemberEntity{Name: name, Email: name + "@example.org"}
	require.NoError(t, l.raw.Create(m).Error)
	return m.ID
}

func (l *ledger) period(t *testing.T, amount, lateFee int64, due time.Time, active bool) *model.Period {
	p, err := l.periods.Create(context.Background(), &model.Period{
		Name:          "period " + due.Format("2006-01"),
		Amount:        amount,
		LateFeePerDay: lateFee,
		DueDate:       due,
		IsActive:      active,
	})
	require.NoError(t, err)
	return p
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}
