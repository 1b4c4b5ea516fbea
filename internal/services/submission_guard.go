package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/cash-ledger/pkg/logger"
	"github.com/nimasrn/cash-ledger/pkg/redis"
)

const submissionLockPrefix = "cash:submit:"

// SubmissionGuard is a short Redis lock on (member, period). It only narrows
// the window for double submissions; the live submission index is what
// guarantees uniqueness, so a Redis outage lets submissions through.
type SubmissionGuard struct {
	redis redis.RedisAdapter
	ttl   time.Duration
}

func NewSubmissionGuard(adapter redis.RedisAdapter, ttl time.Duration) *SubmissionGuard {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &SubmissionGuard{
		redis: adapter,
		ttl:   ttl,
	}
}

func submissionKey(memberID, periodID int64) string {
	return fmt.Sprintf("%s%d:%d", submissionLockPrefix, memberID, periodID)
}

func (g *SubmissionGuard) Acquire(ctx context.Context, memberID, periodID int64) (func(), error) {
	key := submissionKey(memberID, periodID)
	token := []byte(uuid.NewString())

	acquired, err := g.redis.SetNX(key, token, g.ttl)
	if err != nil {
		logger.Warn("submission guard unavailable, relying on database", "key", key, "error", err)
		return func() {}, nil
	}
	if !acquired {
		return nil, ErrSubmissionInProgress
	}

	return func() {
		current, err := g.redis.Get(key)
		if err != nil {
			if err != redis.NilError {
				logger.Warn("failed to read submission lock", "key", key, "error", err)
			}
			return
		}
		// the lock expired and someone else holds it now
		if string(current) != string(token) {
			return
		}
		if err := g.redis.Del(key); err != nil {
			logger.Warn("failed to release submission lock", "key", key, "error", err)
		}
	}, nil
}
