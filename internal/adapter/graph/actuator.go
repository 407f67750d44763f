// Package graph performs directory calls against Microsoft Graph.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/stackops/stackops/internal/infra/logger"
	"github.com/stackops/stackops/internal/ports"
)

const (
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"
	DefaultScope   = "https://graph.microsoft.com/.default"
	tokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

	maxResponseBytes = 1 << 20
)

// Config represents Graph client configuration
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	BaseURL      string
	// TokenURL overrides the tenant token endpoint
	TokenURL string
	Timeout  time.Duration
}

// Actuator implements ports.Actuator with app-only Graph credentials
type Actuator struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

// NewActuator creates a Graph actuator. Tokens are fetched lazily and cached
// until they expire.
func NewActuator(config Config, log logger.Logger) (*Actuator, error) {
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, fmt.Errorf("graph client id and secret are required")
	}
	tokenURL := config.TokenURL
	if tokenURL == "" {
		if config.TenantID == "" {
			return nil, fmt.Errorf("graph tenant id is required")
		}
		tokenURL = fmt.Sprintf(tokenURLFormat, config.TenantID)
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	credentials := clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{DefaultScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	// token requests share the timeout of directory calls
	base := &http.Client{Timeout: timeout}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := credentials.Client(tokenCtx)
	client.Timeout = timeout

	return &Actuator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  log.WithFields(map[string]interface{}{"component": "graph"}),
	}, nil
}

// Invoke performs one directory call. Any HTTP answer is a result; only a call
// that could not complete is an error.
func (a *Actuator) Invoke(ctx context.Context, req ports.ActuationRequest) (*ports.ActuationResult, error) {
	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, a.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("graph %s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read graph response: %w", err)
	}

	logger.LogPerformance(ctx, a.logger, "graph_call", time.Since(start), map[string]interface{}{
		"method": req.Method,
		"path":   req.Path,
		"status": resp.StatusCode,
	})

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result := &ports.ActuationResult{Success: true, StatusCode: resp.StatusCode}
		if len(bytes.TrimSpace(payload)) > 0 && json.Valid(payload) {
			result.Result = payload
		}
		return result, nil
	}

	result := &ports.ActuationResult{
		Success:    false,
		StatusCode: resp.StatusCode,
		Error:      errorDetail(resp.StatusCode, payload),
	}
	if json.Valid(payload) {
		result.Payload = payload
	} else if len(payload) > 0 {
		result.Payload, _ = json.Marshal(string(payload))
	}
	return result, nil
}

// errorDetail extracts the Graph error code and message when present
func errorDetail(status int, payload []byte) string {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error.Code != "" {
		if envelope.Error.Message != "" {
			return envelope.Error.Code + ": " + envelope.Error.Message
		}
		return envelope.Error.Code
	}
	return fmt.Sprintf("graph returned HTTP %d", status)
}

// DryRunActuator logs calls and reports success without contacting the directory
type DryRunActuator struct {
	logger logger.Logger
}

// NewDryRunActuator creates a dry-run actuator
func NewDryRunActuator(log logger.Logger) *DryRunActuator {
	return &DryRunActuator{logger: log.WithFields(map[string]interface{}{"component": "graph", "dry_run": true})}
}

// Invoke records the call it would have made
func (d *DryRunActuator) Invoke(ctx context.Context, req ports.ActuationRequest) (*ports.ActuationResult, error) {
	d.logger.Info(ctx, "Dry run directory call", map[string]interface{}{
		"method": req.Method,
		"path":   req.Path,
	})
	result, err := json.Marshal(map[string]interface{}{
		"dryRun": true,
		"method": req.Method,
		"path":   req.Path,
	})
	if err != nil {
		return nil, err
	}
	return &ports.ActuationResult{Success: true, StatusCode: http.StatusOK, Result: result}, nil
}
