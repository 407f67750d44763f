package planschema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackops/stackops/internal/domain"
)

const validPlan = `{
	"steps": [
		{"tool": "graph.users.create", "input": {"displayName": "Alice Dupont", "userPrincipalName": "alice@contoso.com", "department": "Sales"}},
		{"tool": "graph.groups.addMember", "input": {"group": "Sales-EU", "userPrincipalName": "alice@contoso.com"}},
		{"tool": "graph.licenses.assign", "input": {"userPrincipalName": "alice@contoso.com", "skus": ["E3"]}}
	]
}`

func issuePaths(t *testing.T, err error) []string {
	t.Helper()
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	require.NotEmpty(t, ve.Issues)

	paths := make([]string, 0, len(ve.Issues))
	for _, issue := range ve.Issues {
		paths = append(paths, issue.Path)
	}
	return paths
}

func TestValidator_AcceptsValidPlan(t *testing.T) {
	v := MustNew()

	plan, err := v.Parse([]byte(validPlan))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, domain.ToolCreateUser, plan.Steps[0].Tool)
	assert.Equal(t, domain.ToolAddGroupMember, plan.Steps[1].Tool)
	assert.Equal(t, domain.ToolAssignLicense, plan.Steps[2].Tool)
}

func TestValidator_AcceptsSingleSkuString(t *testing.T) {
	v := MustNew()

	_, err := v.Parse([]byte(`{"steps":[{"tool":"graph.licenses.assign","input":{"userPrincipalName":"a@contoso.com","skus":"E5"}}]}`))
	assert.NoError(t, err)
}

func TestValidator_Rejects(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		expectedPath string
	}{
		{
			name:         "empty steps",
			input:        `{"steps": []}`,
			expectedPath: "steps",
		},
		{
			name:         "missing steps",
			input:        `{"plan": []}`,
			expectedPath: "",
		},
		{
			name:         "unknown tool",
			input:        `{"steps": [{"tool": "graph.users.delete", "input": {"userPrincipalName": "a@contoso.com"}}]}`,
			expectedPath: "steps.0.tool",
		},
		{
			name:         "input not an object",
			input:        `{"steps": [{"tool": "graph.users.disable", "input": "bob@contoso.com"}]}`,
			expectedPath: "steps.0.input",
		},
		{
			name:         "missing input",
			input:        `{"steps": [{"tool": "graph.users.disable"}]}`,
			expectedPath: "steps.0",
		},
		{
			name:         "missing principal on second step",
			input:        `{"steps": [{"tool": "graph.users.disable", "input": {"userPrincipalName": "a@contoso.com"}}, {"tool": "graph.groups.addMember", "input": {"group": "Sales"}}]}`,
			expectedPath: "steps.1.input",
		},
		{
			name:         "empty sku list",
			input:        `{"steps": [{"tool": "graph.licenses.assign", "input": {"userPrincipalName": "a@contoso.com", "skus": []}}]}`,
			expectedPath: "steps.0.input.skus",
		},
		{
			name:         "not json",
			input:        `Sure! Here is your plan: steps...`,
			expectedPath: "",
		},
	}

	v := MustNew()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Parse([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, issuePaths(t, err), tt.expectedPath)
		})
	}
}

func TestValidator_SummaryIsEchoable(t *testing.T) {
	v := MustNew()

	_, err := v.Parse([]byte(`{"steps": [{"tool": "graph.users.delete", "input": {}}]}`))
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Summary(), "steps.0.tool: ")
}

func TestValidator_ValidateInMemoryPlan(t *testing.T) {
	v := MustNew()

	step, err := domain.NewStep(domain.DisableUserInput{UserPrincipalName: "bob@contoso.com"})
	require.NoError(t, err)

	assert.NoError(t, v.Validate(&domain.Plan{Steps: []domain.Step{step}}))
	assert.Error(t, v.Validate(&domain.Plan{}))
	assert.Error(t, v.Validate(nil))
}

func TestDottedPath(t *testing.T) {
	assert.Equal(t, "", dottedPath(""))
	assert.Equal(t, "steps.0.tool", dottedPath("/steps/0/tool"))
	assert.Equal(t, "a/b.c~d", dottedPath("/a~1b/c~0d"))
}
