package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stackops/stackops/internal/domain"
	"github.com/stackops/stackops/internal/ports"
)

func newTestExecutor(actuator ports.Actuator) *Executor {
	return NewExecutor(actuator, fixedPasswordTranslator(), testLogger(), nil)
}

func TestExecutor_ExecutePlan(t *testing.T) {
	tests := []struct {
		name        string
		steps       int
		failAt      int
		wantEntries int
		wantErr     bool
	}{
		{name: "single step", steps: 1, wantEntries: 1},
		{name: "all steps succeed", steps: 4, wantEntries: 4},
		{name: "first step fails", steps: 3, failAt: 1, wantEntries: 1, wantErr: true},
		{name: "middle step fails", steps: 5, failAt: 3, wantEntries: 3, wantErr: true},
		{name: "last step fails", steps: 2, failAt: 2, wantEntries: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actuator := &scriptedActuator{failAt: tt.failAt}
			sink := &recordingSink{}

			outcomes, err := newTestExecutor(actuator).ExecutePlan(context.Background(), "intent-1", disablePlan(tt.steps), sink)

			require.Len(t, sink.entries, tt.wantEntries)
			require.Len(t, outcomes, tt.wantEntries)
			assert.Len(t, actuator.calls, tt.wantEntries)

			for i, entry := range sink.entries {
				assert.Equal(t, "intent-1", entry.IntentID)
				assert.Equal(t, domain.ToolDisableUser, entry.ToolName)
				assert.Equal(t, outcomes[i].Step, i+1)
				if tt.wantErr && i == len(sink.entries)-1 {
					assert.Equal(t, domain.AuditStatusError, entry.Status)
					continue
				}
				assert.Equal(t, domain.AuditStatusDone, entry.Status)
			}

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ae *domain.ActuationError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.failAt, ae.Step)
			assert.Equal(t, "Request_BadRequest", ae.Detail)
			assert.JSONEq(t, `{"error":{"code":"Request_BadRequest"}}`, string(ae.Payload))

			last := sink.entries[len(sink.entries)-1]
			assert.JSONEq(t, `{"error":"Request_BadRequest","payload":{"error":{"code":"Request_BadRequest"}}}`, string(last.OutputJSON))
		})
	}
}

func TestExecutor_FailFastProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a failing step k leaves exactly k entries and k-1 done", prop.ForAll(
		func(steps, failAt int) bool {
			if failAt > steps {
				failAt = 0
			}
			actuator := &scriptedActuator{failAt: failAt}
			sink := &recordingSink{}
			_, err := newTestExecutor(actuator).ExecutePlan(context.Background(), "intent-1", disablePlan(steps), sink)

			if failAt == 0 {
				return err == nil && len(sink.entries) == steps
			}
			if err == nil || len(sink.entries) != failAt {
				return false
			}
			for i, entry := range sink.entries {
				want := domain.AuditStatusDone
				if i == failAt-1 {
					want = domain.AuditStatusError
				}
				if entry.Status != want {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.IntRange(0, 12),
	))

	properties.TestingRun(t)
}

func TestExecutor_TransportFailure(t *testing.T) {
	actuator := new(MockActuator)
	actuator.On("Invoke", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()
	sink := &recordingSink{}

	outcomes, err := newTestExecutor(actuator).ExecutePlan(context.Background(), "intent-1", disablePlan(2), sink)

	var ae *domain.ActuationError
	require.ErrorAs(t, err, &ae)
	assert.True(t, domain.IsTransport(err))
	assert.Equal(t, 1, ae.Step)
	require.Len(t, outcomes, 1)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, domain.AuditStatusError, sink.entries[0].Status)
	assert.Contains(t, string(sink.entries[0].OutputJSON), "connection refused")
	actuator.AssertNumberOfCalls(t, "Invoke", 1)
}

func TestExecutor_TranslatesRequests(t *testing.T) {
	actuator := new(MockActuator)
	actuator.On("Invoke", mock.Anything, mock.MatchedBy(func(req ports.ActuationRequest) bool {
		return req.Method == "POST" && req.Path == "/users"
	})).Return(&ports.ActuationResult{Success: true, StatusCode: 201, Result: json.RawMessage(`{"id":"u-1"}`)}, nil).Once()
	actuator.On("Invoke", mock.Anything, mock.MatchedBy(func(req ports.ActuationRequest) bool {
		return req.Path == "/groups/Sales-EU/members/$ref"
	})).Return(&ports.ActuationResult{Success: true, StatusCode: 204}, nil).Once()
	actuator.On("Invoke", mock.Anything, mock.MatchedBy(func(req ports.ActuationRequest) bool {
		return req.Path == "/users/alice@contoso.com/assignLicense"
	})).Return(&ports.ActuationResult{Success: true, StatusCode: 200, Result: json.RawMessage(`{"id":"u-1"}`)}, nil).Once()
	sink := &recordingSink{}

	outcomes, err := newTestExecutor(actuator).ExecutePlan(context.Background(), "intent-1", mustPlan(alicePlanJSON), sink)

	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.JSONEq(t, `{"id":"u-1"}`, string(outcomes[0].Output))
	assert.JSONEq(t, `{}`, string(outcomes[1].Output))
	assert.Equal(t, []string{"1", "2", "3"}, []string{sink.entries[0].Step, sink.entries[1].Step, sink.entries[2].Step})
	actuator.AssertExpectations(t)
}

func TestExecutor_AuditSinkFailureStops(t *testing.T) {
	actuator := &scriptedActuator{}
	sink := &recordingSink{err: errors.New("disk full")}

	outcomes, err := newTestExecutor(actuator).ExecutePlan(context.Background(), "intent-1", disablePlan(3), sink)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, outcomes)
	assert.Len(t, actuator.calls, 1)
}

func TestExecutor_AuditSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	actuator := new(MockActuator)
	actuator.On("Invoke", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()

	var sinkCtxErr error
	sink := ports.AuditSinkFunc(func(ctx context.Context, entry *domain.AuditLogEntry) error {
		sinkCtxErr = ctx.Err()
		return nil
	})

	_, err := newTestExecutor(actuator).ExecutePlan(ctx, "intent-1", disablePlan(2), sink)

	require.Error(t, err)
	assert.NoError(t, sinkCtxErr)
}

func TestExecutor_EmptyPlan(t *testing.T) {
	_, err := newTestExecutor(&scriptedActuator{}).ExecutePlan(context.Background(), "intent-1", &domain.Plan{}, &recordingSink{})
	assert.ErrorIs(t, err, domain.ErrEmptyPlan)
}
