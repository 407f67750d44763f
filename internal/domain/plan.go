package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tool identifies one of the directory actions a plan step may request
type Tool string

const (
	ToolCreateUser     Tool = "graph.users.create"
	ToolAddGroupMember Tool = "graph.groups.addMember"
	ToolAssignLicense  Tool = "graph.licenses.assign"
	ToolDisableUser    Tool = "graph.users.disable"
)

// KnownTools lists every tool a plan may reference, in prompt order
var KnownTools = []Tool{
	ToolCreateUser,
	ToolAddGroupMember,
	ToolAssignLicense,
	ToolDisableUser,
}

// IsKnown reports whether the tool is part of the fixed tool set
func (t Tool) IsKnown() bool {
	for _, known := range KnownTools {
		if t == known {
			return true
		}
	}
	return false
}

// Plan is the ordered list of steps an intent resolves to
type Plan struct {
	Steps []Step `json:"steps"`
}

// Step is one action in a plan. Input is kept verbatim so it can be audited
// exactly as the planner produced it; Action decodes it into the typed variant.
type Step struct {
	Tool  Tool            `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// NewStep builds a step from a typed action
func NewStep(action Action) (Step, error) {
	raw, err := json.Marshal(action)
	if err != nil {
		return Step{}, fmt.Errorf("failed to marshal %s input: %w", action.Tool(), err)
	}
	return Step{Tool: action.Tool(), Input: raw}, nil
}

// Action decodes the step input into the variant matching its tool
func (s Step) Action() (Action, error) {
	var action Action
	switch s.Tool {
	case ToolCreateUser:
		action = &CreateUserInput{}
	case ToolAddGroupMember:
		action = &AddGroupMemberInput{}
	case ToolAssignLicense:
		action = &AssignLicenseInput{}
	case ToolDisableUser:
		action = &DisableUserInput{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, s.Tool)
	}

	if len(s.Input) == 0 {
		return nil, fmt.Errorf("%s: input is required", s.Tool)
	}
	if err := json.Unmarshal(s.Input, action); err != nil {
		return nil, fmt.Errorf("%s: invalid input: %w", s.Tool, err)
	}
	return action, nil
}

// Principal returns the userPrincipalName the step targets, or "" when absent.
// It reads the raw input so it also works for steps that fail typed decoding.
func (s Step) Principal() string {
	var probe struct {
		UserPrincipalName any `json:"userPrincipalName"`
	}
	if err := json.Unmarshal(s.Input, &probe); err != nil {
		return ""
	}
	upn, _ := probe.UserPrincipalName.(string)
	return upn
}

// CountTool returns how many steps use the given tool
func (p Plan) CountTool(tool Tool) int {
	count := 0
	for _, step := range p.Steps {
		if step.Tool == tool {
			count++
		}
	}
	return count
}

// Action is the typed input of a single step
type Action interface {
	Tool() Tool
	Principal() string
}

// PasswordProfile mirrors the directory password profile
type PasswordProfile struct {
	Password                      string `json:"password,omitempty"`
	ForceChangePasswordNextSignIn *bool  `json:"forceChangePasswordNextSignIn,omitempty"`
}

// CreateUserInput is the input of graph.users.create
type CreateUserInput struct {
	DisplayName       string           `json:"displayName"`
	UserPrincipalName string           `json:"userPrincipalName"`
	MailNickname      string           `json:"mailNickname,omitempty"`
	Department        string           `json:"department,omitempty"`
	JobTitle          string           `json:"jobTitle,omitempty"`
	UsageLocation     string           `json:"usageLocation,omitempty"`
	PasswordProfile   *PasswordProfile `json:"passwordProfile,omitempty"`
}

func (CreateUserInput) Tool() Tool          { return ToolCreateUser }
func (i CreateUserInput) Principal() string { return i.UserPrincipalName }

// LocalPart returns the part of the principal name before '@'
func (i CreateUserInput) LocalPart() string {
	local, _, _ := strings.Cut(i.UserPrincipalName, "@")
	return local
}

// AddGroupMemberInput is the input of graph.groups.addMember
type AddGroupMemberInput struct {
	Group             string `json:"group"`
	UserPrincipalName string `json:"userPrincipalName"`
}

func (AddGroupMemberInput) Tool() Tool          { return ToolAddGroupMember }
func (i AddGroupMemberInput) Principal() string { return i.UserPrincipalName }

// AssignLicenseInput is the input of graph.licenses.assign
type AssignLicenseInput struct {
	UserPrincipalName string     `json:"userPrincipalName"`
	Skus              StringList `json:"skus"`
}

func (AssignLicenseInput) Tool() Tool          { return ToolAssignLicense }
func (i AssignLicenseInput) Principal() string { return i.UserPrincipalName }

// DisableUserInput is the input of graph.users.disable
type DisableUserInput struct {
	UserPrincipalName string `json:"userPrincipalName"`
}

func (DisableUserInput) Tool() Tool          { return ToolDisableUser }
func (i DisableUserInput) Principal() string { return i.UserPrincipalName }

// StringList accepts either a single string or an array of strings
type StringList []string

// UnmarshalJSON normalizes a lone string into a one-element list
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*l = StringList(many)
	return nil
}
