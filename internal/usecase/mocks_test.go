package usecase

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/stackops/stackops/internal/domain"
	"github.com/stackops/stackops/internal/infra/logger"
	"github.com/stackops/stackops/internal/planschema"
	"github.com/stackops/stackops/internal/ports"
)

// MockOracle is a mock implementation of ports.Oracle
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Complete(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

func (m *MockOracle) Provider() string {
	return "mock"
}

// MockActuator is a mock implementation of ports.Actuator
type MockActuator struct {
	mock.Mock
}

func (m *MockActuator) Invoke(ctx context.Context, req ports.ActuationRequest) (*ports.ActuationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ActuationResult), args.Error(1)
}

// scriptedActuator fails the call at failAt (1-based) and succeeds otherwise; failAt 0 never fails
type scriptedActuator struct {
	mu     sync.Mutex
	failAt int
	calls  []ports.ActuationRequest
}

func (a *scriptedActuator) Invoke(ctx context.Context, req ports.ActuationRequest) (*ports.ActuationResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, req)
	if len(a.calls) == a.failAt {
		return &ports.ActuationResult{
			Success:    false,
			StatusCode: 400,
			Error:      "Request_BadRequest",
			Payload:    json.RawMessage(`{"error":{"code":"Request_BadRequest"}}`),
		}, nil
	}
	return &ports.ActuationResult{Success: true, StatusCode: 201, Result: json.RawMessage(`{"ok":true}`)}, nil
}

// recordingSink keeps every entry it is given
type recordingSink struct {
	mu      sync.Mutex
	entries []*domain.AuditLogEntry
	err     error
}

func (s *recordingSink) Record(ctx context.Context, entry *domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func testLogger() logger.Logger {
	return logger.NewNopLogger()
}

func testValidator() *planschema.Validator {
	return planschema.MustNew()
}

func fixedPasswordTranslator() *Translator {
	t := NewTranslator("", "")
	t.passwords = func() (string, error) { return "Generated-Pass-42!", nil }
	return t
}

const alicePlanJSON = `{"steps":[
	{"tool":"graph.users.create","input":{"displayName":"Alice Dupont","userPrincipalName":"alice@contoso.com","department":"Sales"}},
	{"tool":"graph.groups.addMember","input":{"group":"Sales-EU","userPrincipalName":"alice@contoso.com"}},
	{"tool":"graph.licenses.assign","input":{"userPrincipalName":"alice@contoso.com","skus":["E3"]}}
]}`

func mustPlan(raw string) *domain.Plan {
	plan, err := planschema.MustNew().Parse([]byte(raw))
	if err != nil {
		panic(err)
	}
	return plan
}

func disablePlan(n int) *domain.Plan {
	plan := &domain.Plan{}
	for i := 0; i < n; i++ {
		step, err := domain.NewStep(&domain.DisableUserInput{UserPrincipalName: "user@contoso.com"})
		if err != nil {
			panic(err)
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan
}
