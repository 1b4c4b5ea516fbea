package model

// MemberSummary is the public view of a user attached to a transaction,
// either as the payer or as the verifying admin.
type MemberSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}
