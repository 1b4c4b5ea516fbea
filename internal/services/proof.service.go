package services

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nimasrn/cash-ledger/internal/model"
	"github.com/nimasrn/cash-ledger/pkg/logger"
	perrors "github.com/pkg/errors"
)

const MaxProofSize = 5 << 20

var allowedProofTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ProofExtension maps an accepted proof content type to its file extension.
func ProofExtension(contentType string) (string, bool) {
	ext, ok := allowedProofTypes[contentType]
	return ext, ok
}

type ProofStore interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (*model.StoredProof, error)
	Delete(ctx context.Context, path string) error
}

type CleanupPublisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// ProofService accepts payment proof images and removes the ones left behind
// by failed submissions.
type ProofService struct {
	store   ProofStore
	cleanup CleanupPublisher
}

// NewProofService wires the store. cleanup may be nil; failed deletes are
// then only logged.
func NewProofService(store ProofStore, cleanup CleanupPublisher) *ProofService {
	return &ProofService{
		store:   store,
		cleanup: cleanup,
	}
}

// Save checks size and content type of the image and stores it. The returned
// path is what ends up in proof_image_url.
func (s *ProofService) Save(ctx context.Context, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrProofEmpty
	}
	if len(data) > MaxProofSize {
		return "", ErrProofTooLarge
	}

	mt := mimetype.Detect(data)
	ext, ok := ProofExtension(mt.String())
	if !ok {
		return "", ErrProofType
	}

	name := sanitizeFilename(filename)
	if name == "" {
		name = "proof"
	}
	name = strings.TrimSuffix(name, filepath.Ext(name)) + ext

	stored, err := s.store.Upload(ctx, name, mt.String(), data)
	if err != nil {
		return "", perrors.Wrap(err, "upload proof")
	}
	return stored.Path, nil
}

// Discard removes a proof that no transaction references. When the store
// cannot delete it right away a cleanup job is queued.
func (s *ProofService) Discard(ctx context.Context, path string) {
	if path == "" {
		return
	}

	err := s.store.Delete(ctx, path)
	if err == nil {
		return
	}
	logger.Warn("failed to delete orphaned proof", "path", path, "error", err)

	if s.cleanup == nil {
		return
	}
	job := model.ProofCleanupJob{
		Path:        path,
		Reason:      model.CleanupReasonSubmissionFailed,
		RequestedAt: time.Now().UTC(),
	}
	if _, err := s.cleanup.PublishJSON(ctx, job, map[string]string{"path": path}); err != nil {
		logger.Error("failed to enqueue proof cleanup", "path", path, "error", err)
	}
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
