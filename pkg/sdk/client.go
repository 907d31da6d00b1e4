package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// Client is a semdex HTTP API client. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	obs     *observer
}

// New creates a client for a semdex server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("semdex: invalid base URL %q", baseURL)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.apiKey,
		http:    hc,
		obs:     obs,
	}, nil
}

// Concepts lists the concept ids the server can measure.
func (c *Client) Concepts(ctx context.Context) ([]string, error) {
	start := time.Now()
	var out struct {
		Concepts []string `json:"concepts"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/concepts", nil, &out)
	c.obs.observe("concepts", start, err)
	return out.Concepts, err
}

// Retrieve returns the scored matches for one concept.
func (c *Client) Retrieve(ctx context.Context, conceptID string, opts RetrieveOptions) ([]Match, error) {
	start := time.Now()

	body := map[string]any{}
	if opts.K > 0 {
		body["k_per_pattern"] = opts.K
	}
	if opts.Segment != "" {
		body["segment"] = opts.Segment
	}

	var out struct {
		Matches []Match `json:"matches"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/concepts/"+url.PathEscape(conceptID)+"/retrieve", body, &out)
	c.obs.observe("retrieve", start, err)
	return out.Matches, err
}

// Measure runs the full measurement pipeline on the server.
func (c *Client) Measure(ctx context.Context, req MeasureRequest) (MeasureResult, error) {
	start := time.Now()
	var out MeasureResult
	err := c.do(ctx, http.MethodPost, "/v1/measure", req, &out)
	c.obs.observe("measure", start, err)
	return out, err
}

// Calibrate derives and persists a threshold from labeled pairs.
func (c *Client) Calibrate(ctx context.Context, conceptID string, pairs []LabeledPair, version string) (Calibration, error) {
	start := time.Now()

	body := map[string]any{"pairs": pairs}
	if version != "" {
		body["version"] = version
	}

	var out Calibration
	err := c.do(ctx, http.MethodPost, "/v1/concepts/"+url.PathEscape(conceptID)+"/calibrate", body, &out)
	c.obs.observe("calibrate", start, err)
	return out, err
}

// Threshold returns the concept's current threshold.
func (c *Client) Threshold(ctx context.Context, conceptID string) (Threshold, error) {
	start := time.Now()
	var out Threshold
	err := c.do(ctx, http.MethodGet, "/v1/concepts/"+url.PathEscape(conceptID)+"/threshold", nil, &out)
	c.obs.observe("threshold_get", start, err)
	return out, err
}

// SetThreshold stores a manually chosen threshold for a concept.
func (c *Client) SetThreshold(ctx context.Context, conceptID string, value float64, version string) (Threshold, error) {
	start := time.Now()
	var out Threshold
	err := c.do(ctx, http.MethodPut, "/v1/concepts/"+url.PathEscape(conceptID)+"/threshold",
		Threshold{ConceptID: conceptID, Value: value, Version: version}, &out)
	c.obs.observe("threshold_put", start, err)
	return out, err
}

// Search embeds a free-text query on the server and runs raw cross-region
// k-NN without any threshold. k <= 0 uses the server default.
func (c *Client) Search(ctx context.Context, query string, k int) ([]SearchHit, error) {
	start := time.Now()

	body := map[string]any{"query": query}
	if k > 0 {
		body["k"] = k
	}

	var out struct {
		Hits []SearchHit `json:"hits"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/search", body, &out)
	c.obs.observe("search", start, err)
	return out.Hits, err
}

// Health checks the health of the server and its components.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	start := time.Now()
	var out HealthStatus
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &out)
	c.obs.observe("health", start, err)
	// A degraded server answers 503 with the same body; surface the report.
	var apiErr *APIError
	if err != nil && errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && out.Status != "" {
		return out, nil
	}
	return out, err
}

// do issues one request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("semdex: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("semdex: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("semdex: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("semdex: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		// Decode the error body when present; keep the raw body otherwise.
		var er struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal(data, &er); jsonErr == nil && er.Code != "" {
			apiErr.Code = er.Code
			apiErr.Message = er.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		// Health reports are still decoded so callers see the checks.
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("semdex: decode response: %w", err)
	}
	return nil
}
