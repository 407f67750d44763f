package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// AuditStatus is the outcome recorded for one attempted step
type AuditStatus string

const (
	AuditStatusDone  AuditStatus = "done"
	AuditStatusError AuditStatus = "error"
)

// AuditLogEntry is the immutable record of one attempted step
type AuditLogEntry struct {
	ID         string          `json:"id"`
	IntentID   string          `json:"intent_id"`
	Step       string          `json:"step"`
	ToolName   Tool            `json:"tool_name"`
	InputJSON  json.RawMessage `json:"input_json"`
	OutputJSON json.RawMessage `json:"output_json"`
	Status     AuditStatus     `json:"status"`
	Timestamp  time.Time       `json:"ts"`
}

// NewAuditLogEntry builds the entry for the step at zero-based index
func NewAuditLogEntry(intentID string, index int, step Step, output json.RawMessage, status AuditStatus) *AuditLogEntry {
	return &AuditLogEntry{
		IntentID:   intentID,
		Step:       strconv.Itoa(index + 1),
		ToolName:   step.Tool,
		InputJSON:  step.Input,
		OutputJSON: output,
		Status:     status,
	}
}

// ErrorOutput renders a failure detail the way it is stored in output_json
func ErrorOutput(detail string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"error": detail})
	return raw
}
