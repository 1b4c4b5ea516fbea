package repository

import (
	"testing"

	"github.com/nimasrn/cash-ledger/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testDB struct {
	*pg.DB
	rawDB *gorm.DB
}

func openTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, AutoMigrate(db))
	return db
}

func setupTestDB(t *testing.T) *testDB {
	db := openTestDB(t)
	return &testDB{
		DB:    pg.New(db, db),
		rawDB: db,
	}
}

// setupLaggingReplicaDB pairs the primary with a read handle that never
// receives its writes.
func setupLaggingReplicaDB(t *testing.T) *testDB {
	primary := openTestDB(t)
	return &testDB{
		DB:    pg.New(openTestDB(t), primary),
		rawDB: primary,
	}
}
