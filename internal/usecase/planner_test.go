package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stackops/stackops/internal/domain"
)

const invalidPlanJSON = `{"steps":[{"tool":"graph.users.delete","input":{"userPrincipalName":"bob@contoso.com"}}]}`

func newTestPlanner(oracle *MockOracle) *Planner {
	return NewPlanner(oracle, testValidator(), testLogger(), nil)
}

func TestPlanner_PlanFromText(t *testing.T) {
	tests := []struct {
		name         string
		answers      []string
		wantCalls    int
		wantSteps    int
		wantClarify  string
		wantAttempts int
		wantErr      bool
	}{
		{
			name:         "valid plan on first call",
			answers:      []string{alicePlanJSON},
			wantCalls:    1,
			wantSteps:    3,
			wantAttempts: 1,
		},
		{
			name:         "fenced plan is accepted",
			answers:      []string{"```json\n" + alicePlanJSON + "\n```"},
			wantCalls:    1,
			wantSteps:    3,
			wantAttempts: 1,
		},
		{
			name:         "invalid then valid uses exactly one retry",
			answers:      []string{invalidPlanJSON, alicePlanJSON},
			wantCalls:    2,
			wantSteps:    3,
			wantAttempts: 2,
		},
		{
			name:         "prose then valid",
			answers:      []string{"Sure! Here is your plan.", alicePlanJSON},
			wantCalls:    2,
			wantSteps:    3,
			wantAttempts: 2,
		},
		{
			name:      "invalid twice is exhausted after two calls",
			answers:   []string{invalidPlanJSON, `{"steps":[]}`},
			wantCalls: 2,
			wantErr:   true,
		},
		{
			name:         "clarifying question",
			answers:      []string{`{"clarify":"Which department should Alice join?"}`},
			wantCalls:    1,
			wantClarify:  "Which department should Alice join?",
			wantAttempts: 1,
		},
		{
			name:         "clarifying question on the retry",
			answers:      []string{invalidPlanJSON, `{"clarify":"Which license?"}`},
			wantCalls:    2,
			wantClarify:  "Which license?",
			wantAttempts: 2,
		},
		{
			name:         "non-string clarify is a malformed plan and is retried",
			answers:      []string{`{"clarify":{"question":"Which license?"}}`, alicePlanJSON},
			wantCalls:    2,
			wantSteps:    3,
			wantAttempts: 2,
		},
		{
			name:         "blank clarify is a malformed plan and is retried",
			answers:      []string{`{"clarify":"   "}`, alicePlanJSON},
			wantCalls:    2,
			wantSteps:    3,
			wantAttempts: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := new(MockOracle)
			for _, answer := range tt.answers {
				oracle.On("Complete", mock.Anything, plannerSystemPrompt, mock.AnythingOfType("string")).Return(answer, nil).Once()
			}

			result, err := newTestPlanner(oracle).PlanFromText(context.Background(), "contoso", "Create user Alice Dupont")

			oracle.AssertNumberOfCalls(t, "Complete", tt.wantCalls)
			if tt.wantErr {
				var ve *domain.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.NotEmpty(t, ve.Issues)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAttempts, result.Attempts)
			if tt.wantClarify != "" {
				assert.True(t, result.NeedsClarification)
				assert.Equal(t, tt.wantClarify, result.ClarifyingQuestion)
				assert.Nil(t, result.Plan)
				return
			}
			require.NotNil(t, result.Plan)
			assert.Len(t, result.Plan.Steps, tt.wantSteps)
		})
	}
}

func TestPlanner_CorrectivePromptCarriesIssues(t *testing.T) {
	oracle := new(MockOracle)
	var prompts []string
	oracle.On("Complete", mock.Anything, plannerSystemPrompt, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { prompts = append(prompts, args.String(2)) }).
		Return(invalidPlanJSON, nil).Once()
	oracle.On("Complete", mock.Anything, plannerSystemPrompt, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { prompts = append(prompts, args.String(2)) }).
		Return(alicePlanJSON, nil).Once()

	_, err := newTestPlanner(oracle).PlanFromText(context.Background(), "contoso", "Create user Alice Dupont")
	require.NoError(t, err)

	require.Len(t, prompts, 2)
	assert.Equal(t, "Tenant: contoso\nTask: Create user Alice Dupont\nOutput: JSON only.", prompts[0])
	assert.Contains(t, prompts[1], prompts[0])
	assert.Contains(t, prompts[1], "Your last JSON was invalid: ")
	assert.Contains(t, prompts[1], "steps.0.tool")
	assert.Contains(t, prompts[1], "Return a corrected JSON plan only.")
}

func TestPlanner_OracleFailureIsNotRetried(t *testing.T) {
	oracle := new(MockOracle)
	oracle.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("dial tcp: i/o timeout")).Once()

	_, err := newTestPlanner(oracle).PlanFromText(context.Background(), "contoso", "disable bob")

	require.Error(t, err)
	assert.True(t, domain.IsTransport(err))
	oracle.AssertNumberOfCalls(t, "Complete", 1)
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`},
		{name: "padded", in: "  {\"a\":1}\n", want: `{"a":1}`},
		{name: "json fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "single line fence", in: "```{\"a\":1}```", want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFence(tt.in))
		})
	}
}
