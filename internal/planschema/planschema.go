// Package planschema holds the contract a synthesized plan must satisfy.
//
// The contract is a JSON Schema compiled once at startup. Validation failures
// are flattened into domain.FieldIssue values with dotted paths (steps.0.tool)
// so they can be echoed back to the planner verbatim.
package planschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/stackops/stackops/internal/domain"
)

const schemaURL = "https://stackops.schemas.local/plan.schema.json"

//go:embed plan.schema.json
var planSchema []byte

// Validator checks candidate plans against the compiled schema
type Validator struct {
	schema *jsonschema.Schema
}

// New compiles the embedded plan schema
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(planSchema)); err != nil {
		return nil, fmt.Errorf("plan schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("plan schema compile failed: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// MustNew is New for package-level wiring; the schema is embedded, so failure is a build defect
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Parse decodes raw JSON and validates it as a plan. Any failure, including
// malformed JSON, is returned as a *domain.ValidationError.
func (v *Validator) Parse(raw []byte) (*domain.Plan, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &domain.ValidationError{Issues: []domain.FieldIssue{
			{Message: "invalid JSON: " + err.Error()},
		}}
	}
	return v.ParseValue(doc, raw)
}

// ParseValue validates an already-decoded document; raw must be its JSON encoding
func (v *Validator) ParseValue(doc any, raw []byte) (*domain.Plan, error) {
	if err := v.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, &domain.ValidationError{Issues: flatten(ve)}
		}
		return nil, &domain.ValidationError{Issues: []domain.FieldIssue{{Message: err.Error()}}}
	}

	var plan domain.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, &domain.ValidationError{Issues: []domain.FieldIssue{{Message: err.Error()}}}
	}

	var issues []domain.FieldIssue
	for i, step := range plan.Steps {
		if _, err := step.Action(); err != nil {
			issues = append(issues, domain.FieldIssue{
				Path:    fmt.Sprintf("steps.%d.input", i),
				Message: err.Error(),
			})
		}
	}
	if len(issues) > 0 {
		return nil, &domain.ValidationError{Issues: issues}
	}

	return &plan, nil
}

// Validate checks an in-memory plan, e.g. one reloaded from the store
func (v *Validator) Validate(plan *domain.Plan) error {
	if plan == nil {
		return &domain.ValidationError{Issues: []domain.FieldIssue{{Path: "steps", Message: "plan is required"}}}
	}
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	_, err = v.Parse(raw)
	return err
}

// flatten collects the leaf causes, which carry the precise location and message
func flatten(root *jsonschema.ValidationError) []domain.FieldIssue {
	var issues []domain.FieldIssue
	seen := make(map[domain.FieldIssue]bool)

	var walk func(ve *jsonschema.ValidationError)
	walk = func(ve *jsonschema.ValidationError) {
		if len(ve.Causes) == 0 {
			issue := domain.FieldIssue{Path: dottedPath(ve.InstanceLocation), Message: ve.Message}
			if !seen[issue] {
				seen[issue] = true
				issues = append(issues, issue)
			}
			return
		}
		for _, cause := range ve.Causes {
			walk(cause)
		}
	}
	walk(root)

	return issues
}

// dottedPath turns a JSON pointer (/steps/0/tool) into steps.0.tool
func dottedPath(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return ""
	}
	segments := strings.Split(pointer, "/")
	for i, s := range segments {
		s = strings.ReplaceAll(s, "~1", "/")
		segments[i] = strings.ReplaceAll(s, "~0", "~")
	}
	return strings.Join(segments, ".")
}
