// Package litellm talks to a LiteLLM proxy: the admin API for model discovery
// and health, and the OpenAI-compatible endpoint for schedule generation.
package litellm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/CourseForge/internal/resilience"
)

// Model represents a configured model in LiteLLM.
type Model struct {
	ModelName string         `json:"model_name"`
	ModelID   string         `json:"model_id,omitempty"`
	ModelInfo map[string]any `json:"model_info,omitempty"`
	Params    map[string]any `json:"litellm_params,omitempty"`
}

// Provider returns the provider prefix of the routed model ("openai" for
// "openai/gpt-4o"), or "" when the route carries none.
func (m *Model) Provider() string {
	route, _ := m.Params["model"].(string)
	if p, _, ok := strings.Cut(route, "/"); ok {
		return p
	}
	return ""
}

// HealthReport is LiteLLM's per-endpoint health summary.
type HealthReport struct {
	HealthyEndpoints   []EndpointHealth `json:"healthy_endpoints"`
	UnhealthyEndpoints []EndpointHealth `json:"unhealthy_endpoints"`
	HealthyCount       int              `json:"healthy_count"`
	UnhealthyCount     int              `json:"unhealthy_count"`
}

// EndpointHealth represents the health of a single model endpoint.
type EndpointHealth struct {
	Model   string `json:"model"`
	APIBase string `json:"api_base,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DiscoveredModel is a configured model annotated with its reachability.
type DiscoveredModel struct {
	ModelName   string `json:"model_name"`
	Provider    string `json:"provider,omitempty"`
	MaxTokens   int    `json:"max_tokens,omitempty"`
	Status      string `json:"status"` // "reachable" | "unreachable"
	ErrorDetail string `json:"error_detail,omitempty"`
}

// Client talks to the LiteLLM Proxy admin API.
type Client struct {
	baseURL    string
	masterKey  string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a new LiteLLM admin client.
func NewClient(baseURL, masterKey string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		masterKey: masterKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// ListModels returns all configured models from LiteLLM.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/model/info")
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	var result struct {
		Data []Model `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("unmarshal models: %w", err)
	}
	return result.Data, nil
}

// Health checks if LiteLLM is healthy.
func (c *Client) Health(ctx context.Context) (bool, error) {
	_, err := c.doRequest(ctx, http.MethodGet, "/health")
	return err == nil, err
}

// HealthDetailed returns the per-endpoint health report.
func (c *Client) HealthDetailed(ctx context.Context) (HealthReport, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health")
	if err != nil {
		return HealthReport{}, fmt.Errorf("health: %w", err)
	}
	var report HealthReport
	if err := json.Unmarshal(resp, &report); err != nil {
		return HealthReport{}, fmt.Errorf("unmarshal health: %w", err)
	}
	if report.HealthyCount == 0 {
		report.HealthyCount = len(report.HealthyEndpoints)
	}
	if report.UnhealthyCount == 0 {
		report.UnhealthyCount = len(report.UnhealthyEndpoints)
	}
	return report, nil
}

// DiscoverModels lists configured models with their reachability. When the
// health endpoint fails every model is reported reachable.
func (c *Client) DiscoverModels(ctx context.Context) ([]DiscoveredModel, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	unhealthy := make(map[string]string)
	if report, err := c.HealthDetailed(ctx); err == nil {
		for _, e := range report.UnhealthyEndpoints {
			unhealthy[e.Model] = e.Error
		}
	}

	out := make([]DiscoveredModel, 0, len(models))
	for i := range models {
		m := &models[i]
		d := DiscoveredModel{ModelName: m.ModelName, Provider: m.Provider(), Status: "reachable"}
		if v, ok := m.ModelInfo["max_tokens"].(float64); ok {
			d.MaxTokens = int(v)
		}
		if detail, bad := unhealthy[m.ModelName]; bad {
			d.Status = "unreachable"
			d.ErrorDetail = detail
			if d.ErrorDetail == "" {
				d.ErrorDetail = "unhealthy"
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// ModelStatus looks up the routed model the generator will call. ok is false
// when the proxy has no route with that name.
func (c *Client) ModelStatus(ctx context.Context, model string) (status DiscoveredModel, ok bool, err error) {
	models, err := c.DiscoverModels(ctx)
	if err != nil {
		return DiscoveredModel{}, false, err
	}
	for i := range models {
		if models[i].ModelName == model {
			return models[i], true, nil
		}
	}
	return DiscoveredModel{}, false, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, http.NoBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if c.masterKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.masterKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("litellm API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
