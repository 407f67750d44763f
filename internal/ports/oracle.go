package ports

import (
	"context"
	"encoding/json"
)

// Oracle is the text-completion service used for plan synthesis.
// Its output is untrusted and may be malformed.
type Oracle interface {
	// Complete sends one system and one user instruction and returns the raw text.
	// It does not retry; transport failures are returned as errors.
	Complete(ctx context.Context, system, user string) (string, error)

	// Provider returns the provider name, e.g. "openai"
	Provider() string
}

// HealthChecker is implemented by dependencies that can report reachability
type HealthChecker interface {
	IsHealthy(ctx context.Context) error
}

// OracleConfig represents oracle client configuration
type OracleConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	TimeoutMs   int
	MaxTokens   int
	Temperature float64
}

// ActuationRequest is a normalized directory call
type ActuationRequest struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Body   any    `json:"body,omitempty"`
}

// ActuationResult is the outcome of a directory call the service answered.
// On failure Error carries a readable detail and Payload the raw remote body.
type ActuationResult struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"status_code,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Actuator performs directory calls. A non-nil error means the call could not
// be made or answered at all; a rejected call is a result with Success false.
type Actuator interface {
	Invoke(ctx context.Context, req ActuationRequest) (*ActuationResult, error)
}

// RateLimiter bounds how often a key may proceed
type RateLimiter interface {
	// Allow consumes one unit for key and reports whether it was available
	Allow(ctx context.Context, key string) (bool, error)
}
