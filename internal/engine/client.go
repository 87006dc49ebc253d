// Package engine provides the synthesis engine adapter: the process-lifetime
// session, the single-flight invocation discipline, and the HTTP client for
// the standalone inference runtime that owns the model numerics.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Inference runtime API endpoints.
const (
	apiModelLoad     = "/v1/model/load"
	apiWarmup        = "/v1/warmup"
	apiGenerateBatch = "/v1/generate/batch"
	apiMemoryRelease = "/v1/memory/release"
	apiHealth        = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// Error messages.
const (
	errFmtRuntimeError       = "inference runtime error (%s): %s"
	errFmtRuntimeNonOKStatus = "inference runtime returned non-OK status: %s, body: %s"
)

// ErrEmptyAudio is returned when the runtime reports success but sends no
// combined audio payload.
var ErrEmptyAudio = errors.New("received empty combined audio")

// Client talks to the standalone inference runtime over JSON HTTP. The
// runtime owns the model weights, tokenizers, and accelerator; this client
// only carries the batching contract across the wire.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// LoadRequest asks the runtime to load a model and its tokenizers. Left-side
// padding keeps batch members aligned for a shared generation call.
type LoadRequest struct {
	ModelName   string `json:"model_name"`
	PaddingSide string `json:"padding_side"`
}

// LoadResponse reports the session properties the runtime selected.
type LoadResponse struct {
	Device       string `json:"device"`
	Precision    string `json:"dtype"`
	SamplingRate int    `json:"sampling_rate"`
}

// WarmupRequest carries the trivial tokenization pass that pre-triggers the
// runtime's lazy initialization paths.
type WarmupRequest struct {
	Description string `json:"description"`
	Text        string `json:"text"`
}

// GenerateRequest is the single combined invocation for a whole batch. The
// style description is repeated per item by the runtime, and all items share
// one padded input and one maximum output length.
type GenerateRequest struct {
	Texts            []string `json:"texts"`
	StyleDescription string   `json:"description"`
	MaxNewTokens     int      `json:"max_new_tokens"`
	MinNewTokens     int      `json:"min_new_tokens"`
	DoSample         bool     `json:"do_sample"`
	Temperature      float64  `json:"temperature"`
}

// GenerateResponse is the combined output: one base64 float32-LE sample block
// of batch rows padded to Stride, plus the per-item valid lengths.
type GenerateResponse struct {
	Audio        string `json:"audio"`
	Stride       int    `json:"stride"`
	Lengths      []int  `json:"lengths"`
	SamplingRate int    `json:"sampling_rate"`
}

// runtimeErrorResponse is the runtime's structured error body.
type runtimeErrorResponse struct {
	Detail string `json:"detail"`
}

// NewClient creates an HTTP client for the inference runtime. The baseURL
// should include protocol and port (e.g. "http://localhost:8000"); the
// timeout applies to every request, including generation.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// LoadModel instructs the runtime to load the named model onto its selected
// device and returns the resulting session properties.
func (c *Client) LoadModel(ctx context.Context, req LoadRequest) (*LoadResponse, error) {
	var loaded LoadResponse

	err := c.postJSON(ctx, apiModelLoad, req, &loaded)
	if err != nil {
		return nil, fmt.Errorf("failed to load model '%s': %w", req.ModelName, err)
	}

	return &loaded, nil
}

// Warmup runs a trivial tokenization pass on the runtime and releases any
// transient accelerator memory the pass allocated.
func (c *Client) Warmup(ctx context.Context, req WarmupRequest) error {
	err := c.postJSON(ctx, apiWarmup, req, nil)
	if err != nil {
		return fmt.Errorf("warmup pass failed: %w", err)
	}

	return nil
}

// GenerateBatch issues exactly one combined generation call and returns the
// padded sample block with per-item valid lengths.
func (c *Client) GenerateBatch(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var generated GenerateResponse

	err := c.postJSON(ctx, apiGenerateBatch, req, &generated)
	if err != nil {
		return nil, fmt.Errorf("batch generation failed: %w", err)
	}

	if generated.Audio == "" {
		return nil, ErrEmptyAudio
	}

	return &generated, nil
}

// ReleaseMemory asks the runtime to drop transient accelerator allocations.
// Called after every generation call, successful or not, to bound peak
// memory growth across a long-running process.
func (c *Client) ReleaseMemory(ctx context.Context) error {
	err := c.postJSON(ctx, apiMemoryRelease, struct{}{}, nil)
	if err != nil {
		return fmt.Errorf("memory release failed: %w", err)
	}

	return nil
}

// Health verifies that the inference runtime is reachable and reports OK.
func (c *Client) Health(ctx context.Context) error {
	url := c.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for runtime at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// postJSON sends a JSON POST and decodes the JSON response into out when out
// is non-nil. Non-2xx responses are converted to descriptive errors.
func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + path

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf(
			"failed to send request to inference runtime at %s: %w",
			c.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if out == nil {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode runtime response: %w", err)
	}

	return nil
}

// parseErrorResponse attempts to decode a structured JSON error from the
// runtime, falling back to the raw body so diagnostics are never lost.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp runtimeErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtRuntimeError, resp.Status, errorResp.Detail)
	}

	return fmt.Errorf(errFmtRuntimeNonOKStatus, resp.Status, string(body))
}
