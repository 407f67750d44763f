package domain

import "time"

// ApprovalStatusApproved is the only approval outcome the pipeline records
const ApprovalStatusApproved = "approved"

// DefaultApprover is recorded when the caller is not authenticated
const DefaultApprover = "admin"

// Approval records who approved an intent and when
type Approval struct {
	ID        string    `json:"id"`
	IntentID  string    `json:"intent_id"`
	Approver  string    `json:"approver"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// NewApproval creates an approval for the given intent
func NewApproval(intentID, approver string) *Approval {
	if approver == "" {
		approver = DefaultApprover
	}
	return &Approval{
		IntentID: intentID,
		Approver: approver,
		Status:   ApprovalStatusApproved,
	}
}

// Activity is one line of the merged activity feed
type Activity struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}
