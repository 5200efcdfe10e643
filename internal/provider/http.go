package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatforge/nlukit/internal/metrics"
	"github.com/chatforge/nlukit/pkg/types"
)

// HTTPConfig configures an HTTP-based NLU provider.
type HTTPConfig struct {
	// Name identifies the provider in the registry.
	Name string

	// BaseURL is the provider API root, without a trailing slash.
	BaseURL string

	// Token is sent as a bearer token when non-empty.
	Token string

	// Timeout bounds each request. Default 30s.
	Timeout time.Duration

	// MaxFailures trips the circuit breaker. Default 3.
	MaxFailures uint32

	// OpenTimeout is how long the circuit stays open. Default 30s.
	OpenTimeout time.Duration

	// RequestsPerSecond limits outbound calls. Default 10.
	RequestsPerSecond float64
}

func (c *HTTPConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 10
	}
}

// HTTPProvider talks to a remote NLU engine over a JSON REST API, guarded by
// a circuit breaker and a client-side rate limit.
type HTTPProvider struct {
	config HTTPConfig
	client *http.Client
	guard  *guard
	logger zerolog.Logger
}

// NewHTTPProvider creates an HTTP provider.
func NewHTTPProvider(config HTTPConfig, logger zerolog.Logger) *HTTPProvider {
	config.applyDefaults()
	return &HTTPProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		guard:  newGuard(config.Name, config.MaxFailures, config.OpenTimeout, config.RequestsPerSecond),
		logger: logger,
	}
}

// Name identifies the provider in the registry.
func (p *HTTPProvider) Name() string { return p.config.Name }

// Train pushes the exported dataset and starts a training run.
func (p *HTTPProvider) Train(ctx context.Context, dataset *types.Dataset) error {
	_, err := p.call(ctx, "train", http.MethodPost, "/model/train", dataset, nil)
	return err
}

// Evaluate runs the dataset against the trained model.
func (p *HTTPProvider) Evaluate(ctx context.Context, dataset *types.Dataset) (*EvaluationReport, error) {
	var report EvaluationReport
	if _, err := p.call(ctx, "evaluate", http.MethodPost, "/model/evaluate", dataset, &report); err != nil {
		return nil, err
	}
	report.Provider = p.config.Name
	return &report, nil
}

// Parse runs inference over free text.
func (p *HTTPProvider) Parse(ctx context.Context, text string) (*types.ParseResult, error) {
	var result types.ParseResult
	body := map[string]string{"text": text}
	if _, err := p.call(ctx, "parse", http.MethodPost, "/model/parse", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AddEntity registers an entity on the provider.
func (p *HTTPProvider) AddEntity(ctx context.Context, entity *types.Entity) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if _, err := p.call(ctx, "add_entity", http.MethodPost, "/entities", entity, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// UpdateEntity pushes entity changes to the provider.
func (p *HTTPProvider) UpdateEntity(ctx context.Context, entity *types.Entity) error {
	_, err := p.call(ctx, "update_entity", http.MethodPut,
		"/entities/"+entity.ForeignID, entity, nil)
	return err
}

// DeleteEntity removes the provider-side entity.
func (p *HTTPProvider) DeleteEntity(ctx context.Context, foreignID string) error {
	_, err := p.call(ctx, "delete_entity", http.MethodDelete, "/entities/"+foreignID, nil, nil)
	return err
}

// AddValue registers a value on the provider.
func (p *HTTPProvider) AddValue(ctx context.Context, value *types.Value) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if _, err := p.call(ctx, "add_value", http.MethodPost, "/values", value, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// UpdateValue pushes value changes to the provider.
func (p *HTTPProvider) UpdateValue(ctx context.Context, value *types.Value) error {
	_, err := p.call(ctx, "update_value", http.MethodPut,
		"/values/"+value.ForeignID, value, nil)
	return err
}

// DeleteValue removes the provider-side value.
func (p *HTTPProvider) DeleteValue(ctx context.Context, foreignID string) error {
	_, err := p.call(ctx, "delete_value", http.MethodDelete, "/values/"+foreignID, nil, nil)
	return err
}

// Forget wipes all provider-side state for this project.
func (p *HTTPProvider) Forget(ctx context.Context) error {
	_, err := p.call(ctx, "forget", http.MethodDelete, "/project", nil, nil)
	return err
}

// call runs one JSON request through the guard, decoding the response into
// out when non-nil.
func (p *HTTPProvider) call(ctx context.Context, operation, method, path string, body, out interface{}) (int, error) {
	result, err := p.guard.do(ctx, func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, p.config.BaseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if p.config.Token != "" {
			req.Header.Set("Authorization", "Bearer "+p.config.Token)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return resp.StatusCode, fmt.Errorf("provider returned %d: %s", resp.StatusCode, payload)
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return resp.StatusCode, nil
	})

	status := 0
	if code, ok := result.(int); ok {
		status = code
	}
	metrics.ProviderRequests.WithLabelValues(operation, strconv.Itoa(status)).Inc()

	if err != nil {
		return status, fmt.Errorf("%s %s: %w", p.config.Name, operation, err)
	}
	return status, nil
}
