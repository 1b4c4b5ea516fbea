package repository

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// liveSubmissionIndex keeps at most one PENDING or COMPLETE transaction per
// member and period. REJECTED rows stay outside the index.
const liveSubmissionIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_cash_transactions_live
    ON cash_transactions (user_id, period_id)
    WHERE status IN ('PENDING', 'COMPLETE')`

// AutoMigrate builds the schema from the entities. Production uses the goose
// files under migrations/; this is for tests and local tooling.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&MemberEntity{}, &PeriodEntity{}, &TransactionEntity{}); err != nil {
		return errors.Wrap(err, "auto migrate cash entities")
	}
	if err := db.Exec(liveSubmissionIndex).Error; err != nil {
		return errors.Wrap(err, "create live submission index")
	}
	return nil
}
