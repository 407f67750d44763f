package domain

import (
	"encoding/json"
	"time"
)

// IntentStatus represents the lifecycle state of an intent
type IntentStatus string

const (
	IntentStatusDraft    IntentStatus = "draft"
	IntentStatusPlanned  IntentStatus = "planned"
	IntentStatusApproved IntentStatus = "approved"
	IntentStatusApplied  IntentStatus = "applied"
	IntentStatusFailed   IntentStatus = "failed"
)

// IntentTypeAuto is the classification used when the planner picks the actions
const IntentTypeAuto = "auto"

// IsTerminal reports whether no further transition is possible
func (s IntentStatus) IsTerminal() bool {
	return s == IntentStatusApplied || s == IntentStatusFailed
}

// Intent is a persisted unit of requested work
type Intent struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Type      string          `json:"type"`
	InputJSON json.RawMessage `json:"input_json"`
	PlanJSON  *Plan           `json:"plan_json,omitempty"`
	Status    IntentStatus    `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// IntentInput is the verbatim request preserved on the intent
type IntentInput struct {
	Text string `json:"text"`
}

// NewPlannedIntent creates an intent that already carries a validated plan.
// The draft state is never persisted; identity and creation time come from the store.
func NewPlannedIntent(tenantID, text string, plan *Plan) (*Intent, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if plan == nil || len(plan.Steps) == 0 {
		return nil, ErrEmptyPlan
	}

	input, err := json.Marshal(IntentInput{Text: text})
	if err != nil {
		return nil, err
	}

	return &Intent{
		TenantID:  tenantID,
		Type:      IntentTypeAuto,
		InputJSON: input,
		PlanJSON:  plan,
		Status:    IntentStatusPlanned,
	}, nil
}

// Approve moves a planned intent to approved
func (i *Intent) Approve() error {
	if i.Status != IntentStatusPlanned {
		return ErrIntentNotApprovable
	}
	i.Status = IntentStatusApproved
	return nil
}

// Apply marks an approved intent as fully executed
func (i *Intent) Apply() error {
	if i.Status != IntentStatusApproved {
		return ErrInvalidTransition
	}
	i.Status = IntentStatusApplied
	return nil
}

// Fail marks an approved intent whose execution stopped on an error
func (i *Intent) Fail() error {
	if i.Status != IntentStatusApproved {
		return ErrInvalidTransition
	}
	i.Status = IntentStatusFailed
	return nil
}

// Text returns the natural-language request the intent was created from
func (i *Intent) Text() string {
	var input IntentInput
	if err := json.Unmarshal(i.InputJSON, &input); err != nil {
		return ""
	}
	return input.Text
}
