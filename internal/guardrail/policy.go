// Package guardrail decides whether a well-formed plan may be persisted.
package guardrail

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/stackops/stackops/internal/domain"
)

// DefaultMaxUsersPerBatch applies when the policy does not set limits.maxUsersPerBatch
const DefaultMaxUsersPerBatch = 25

// Policy is the guardrail configuration, read-only once loaded
type Policy struct {
	ToolsAllowed        []domain.Tool `yaml:"toolsAllowed" json:"toolsAllowed,omitempty"`
	Limits              Limits        `yaml:"limits" json:"limits"`
	ProtectedPrincipals []string      `yaml:"protectedPrincipals" json:"protectedPrincipals,omitempty"`
}

// Limits groups the numeric policy bounds
type Limits struct {
	MaxUsersPerBatch *int `yaml:"maxUsersPerBatch" json:"maxUsersPerBatch,omitempty"`
}

// MaxUsersPerBatch returns the configured limit or the default
func (p *Policy) MaxUsersPerBatch() int {
	if p.Limits.MaxUsersPerBatch == nil {
		return DefaultMaxUsersPerBatch
	}
	return *p.Limits.MaxUsersPerBatch
}

// ParsePolicy decodes a YAML policy document. An empty document is the permissive default.
func ParsePolicy(data []byte) (*Policy, error) {
	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse guardrail policy: %w", err)
	}
	if policy.Limits.MaxUsersPerBatch != nil && *policy.Limits.MaxUsersPerBatch < 0 {
		return nil, fmt.Errorf("limits.maxUsersPerBatch must not be negative")
	}
	return &policy, nil
}

// PolicySource produces the policy on first use
type PolicySource interface {
	Load(ctx context.Context) (*Policy, error)
}

// FileSource reads the policy from a YAML file
type FileSource struct {
	Path string
}

// NewFileSource creates a source for the given path
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load reads and parses the file
func (s *FileSource) Load(ctx context.Context) (*Policy, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read guardrail policy %s: %w", s.Path, err)
	}
	return ParsePolicy(data)
}

// StaticSource serves a policy built in code
type StaticSource struct {
	Policy *Policy
}

// Load returns the wrapped policy
func (s StaticSource) Load(ctx context.Context) (*Policy, error) {
	if s.Policy == nil {
		return &Policy{}, nil
	}
	return s.Policy, nil
}

// CachedPolicy loads its source until one load succeeds, then serves that
// policy forever. Concurrent first callers block on the same load. A failed
// load is returned to its callers and retried by the next Get.
type CachedPolicy struct {
	source PolicySource

	mu     sync.Mutex
	policy *Policy
}

// NewCachedPolicy wraps a source with a load-once guard
func NewCachedPolicy(source PolicySource) *CachedPolicy {
	return &CachedPolicy{source: source}
}

// Get returns the loaded policy, loading it if no load has succeeded yet
func (c *CachedPolicy) Get(ctx context.Context) (*Policy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.policy != nil {
		return c.policy, nil
	}
	policy, err := c.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.policy = policy
	return c.policy, nil
}
