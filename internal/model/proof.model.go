package model

import "time"

const (
	CleanupReasonSubmissionFailed = "submission_failed"
)

// ProofCleanupJob asks the processor to remove a stored proof that no
// transaction references.
type ProofCleanupJob struct {
	Path        string    `json:"path"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// StoredProof is what the proof store returns after accepting an upload.
type StoredProof struct {
	Path string `json:"path"`
}
