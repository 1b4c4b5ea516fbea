package helpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nimasrn/cash-ledger/internal/repository"
	"github.com/nimasrn/cash-ledger/internal/services"
	"github.com/nimasrn/cash-ledger/pkg/pg"
	"github.com/nimasrn/cash-ledger/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SetupTestDB opens a private in-memory sqlite database with the cash
// schema and wraps it as both read and write connection.
func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db))

	return pg.New(db, db)
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	// adapters are cached by name
	name := fmt.Sprintf("%s-%s", t.Name(), mr.Addr())
	adapter, err := redis.NewRedisAdapter(name, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestMember(t *testing.T, db *pg.DB, name string) *repository.MemberEntity {
	member := &repository.MemberEntity{
		Name:  name,
		Email: fmt.Sprintf("%s-%d@example.org", name, time.Now().UnixNano()),
	}
	require.NoError(t, db.Write(context.Background()).Create(member).Error)
	return member
}

func CreateTestPeriod(t *testing.T, db *pg.DB, name string, amount, lateFee int64, due time.Time) *repository.PeriodEntity {
	period := &repository.PeriodEntity{
		Name:          name,
		Amount:        amount,
		LateFeePerDay: lateFee,
		DueDate:       due,
		IsActive:      true,
	}
	require.NoError(t, db.Write(context.Background()).Create(period).Error)
	return period
}

// SignToken issues an HS256 access token the identity service accepts.
func SignToken(t *testing.T, secret string, userID int64, roles, permissions []string) string {
	claims := services.IdentityClaims{
		UserID:      userID,
		Name:        fmt.Sprintf("user-%d", userID),
		Roles:       roles,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
