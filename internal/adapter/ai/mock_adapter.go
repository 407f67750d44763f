package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stackops/stackops/internal/domain"
	"github.com/stackops/stackops/internal/ports"
)

var (
	emailPattern   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	groupPattern   = regexp.MustCompile(`(?i)(?:add(?:ed)? to|member of|join)\s+(?:group\s+)?([A-Za-z0-9_\-]+)`)
	licensePattern = regexp.MustCompile(`\b(E[1-5]|F[13]|M365[A-Z0-9_]*|EMS[A-Z0-9_]*)\b`)
	userTaskPrefix = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:create|add|onboard)\s+(?:a\s+)?(?:new\s+)?(?:user\s+)?`)
	taskPattern    = regexp.MustCompile(`(?m)^Task: (.*)$`)
)

// MockOracle answers with plans derived from keywords in the request.
// It lets the pipeline run without a model provider.
type MockOracle struct {
	latency time.Duration
}

// NewMockOracle creates a new mock oracle
func NewMockOracle(config ports.OracleConfig) *MockOracle {
	latency := time.Duration(0)
	if config.TimeoutMs > 0 && config.TimeoutMs < 100 {
		latency = time.Duration(config.TimeoutMs) * time.Millisecond
	}
	return &MockOracle{latency: latency}
}

// Provider returns the current provider type
func (m *MockOracle) Provider() string {
	return "mock"
}

// IsHealthy always succeeds; the mock has no upstream
func (m *MockOracle) IsHealthy(ctx context.Context) error {
	return nil
}

// Complete derives a plan from the Task line of the user prompt
func (m *MockOracle) Complete(ctx context.Context, system, user string) (string, error) {
	if m.latency > 0 {
		select {
		case <-time.After(m.latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	task := user
	if match := taskPattern.FindStringSubmatch(user); match != nil {
		task = match[1]
	}

	steps, question := m.planFor(task)
	if question != "" {
		raw, err := json.Marshal(map[string]string{"clarify": question})
		return string(raw), err
	}

	raw, err := json.Marshal(map[string]interface{}{"steps": steps})
	if err != nil {
		return "", fmt.Errorf("failed to marshal mock plan: %w", err)
	}
	return string(raw), nil
}

type mockStep struct {
	Tool  domain.Tool `json:"tool"`
	Input interface{} `json:"input"`
}

func (m *MockOracle) planFor(task string) ([]mockStep, string) {
	lower := strings.ToLower(task)
	emails := emailPattern.FindAllString(task, -1)
	if len(emails) == 0 {
		return nil, "Which user principal name (email) should this apply to?"
	}

	if strings.Contains(lower, "disable") || strings.Contains(lower, "offboard") || strings.Contains(lower, "block") {
		steps := make([]mockStep, 0, len(emails))
		for _, email := range emails {
			steps = append(steps, mockStep{Tool: domain.ToolDisableUser, Input: domain.DisableUserInput{UserPrincipalName: email}})
		}
		return steps, ""
	}

	upn := emails[0]
	var steps []mockStep

	if strings.Contains(lower, "create") || strings.Contains(lower, "onboard") || strings.Contains(lower, "new user") {
		name := displayName(task, upn)
		if name == "" {
			return nil, fmt.Sprintf("What is the display name for %s?", upn)
		}
		steps = append(steps, mockStep{Tool: domain.ToolCreateUser, Input: domain.CreateUserInput{
			DisplayName:       name,
			UserPrincipalName: upn,
		}})
	}

	for _, match := range groupPattern.FindAllStringSubmatch(task, -1) {
		steps = append(steps, mockStep{Tool: domain.ToolAddGroupMember, Input: domain.AddGroupMemberInput{
			Group:             match[1],
			UserPrincipalName: upn,
		}})
	}

	if skus := licensePattern.FindAllString(task, -1); len(skus) > 0 {
		steps = append(steps, mockStep{Tool: domain.ToolAssignLicense, Input: domain.AssignLicenseInput{
			UserPrincipalName: upn,
			Skus:              domain.StringList(skus),
		}})
	}

	if len(steps) == 0 {
		return nil, fmt.Sprintf("What should be done for %s?", upn)
	}
	return steps, ""
}

// displayName takes the words between the verb and the first comma or address
func displayName(task, upn string) string {
	head := task
	if i := strings.Index(head, upn); i >= 0 {
		head = head[:i]
	}
	head = userTaskPrefix.ReplaceAllString(head, "")
	if i := strings.IndexAny(head, ",;("); i >= 0 {
		head = head[:i]
	}
	return strings.TrimSpace(head)
}
