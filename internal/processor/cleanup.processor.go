package processor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nimasrn/cash-ledger/internal/model"
	"github.com/nimasrn/cash-ledger/internal/queue"
	"github.com/nimasrn/cash-ledger/pkg/logger"
	"github.com/nimasrn/cash-ledger/pkg/prom"
)

type ProofDeleter interface {
	Delete(ctx context.Context, path string) error
}

// ProofCleanupProcessor removes proof images whose submission failed and
// whose immediate delete did not go through.
type ProofCleanupProcessor struct {
	store       ProofDeleter
	idempotency *IdempotencyService
}

func NewProofCleanupProcessor(store ProofDeleter, idempotency *IdempotencyService) *ProofCleanupProcessor {
	return &ProofCleanupProcessor{
		store:       store,
		idempotency: idempotency,
	}
}

func (p *ProofCleanupProcessor) GetType() string {
	return "proof_cleanup"
}

func (p *ProofCleanupProcessor) Process(ctx context.Context, msg *queue.Message) error {
	start := time.Now()

	var job model.ProofCleanupJob
	if err := json.Unmarshal(msg.Data, &job); err != nil || job.Path == "" {
		// retrying a malformed job cannot help
		logger.Error("Dropping malformed cleanup job", "id", msg.ID, "error", err)
		prom.IncProofCleanup("malformed")
		return nil
	}

	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, job.Path)
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		prom.IncProofCleanup("duplicate")
		return nil
	case errors.Is(err, ErrMaxRetriesExceeded):
		logger.Error("Giving up on proof cleanup", "path", job.Path)
		prom.IncProofCleanup("abandoned")
		return nil
	case err != nil:
		return err
	}

	logger.Info("Deleting orphaned proof",
		"path", job.Path,
		"reason", job.Reason,
		"requested_at", job.RequestedAt,
		"retry_count", procCtx.RetryCount)

	if err := p.store.Delete(ctx, job.Path); err != nil {
		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("Failed to mark failure", "path", job.Path, "error", markErr)
		}
		prom.IncProofCleanup("failed")
		return err
	}

	if err := p.idempotency.MarkSuccess(ctx, procCtx); err != nil {
		logger.Error("Failed to mark success", "path", job.Path, "error", err)
	}

	prom.IncProofCleanup("deleted")
	prom.ObserveProofCleanupDuration(time.Since(start).Seconds())
	return nil
}
