package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Sentinel errors distinguishing the model call's failure modes. Callers
// match with errors.Is; every failure funnels through the scheduler's error
// sink either way.
var (
	// ErrTransport wraps network-level failures reaching the endpoint
	ErrTransport = errors.New("model transport error")
	// ErrDecode wraps malformed responses from the endpoint
	ErrDecode = errors.New("model response decode error")
	// ErrModelNotReady is returned while the endpoint is still loading weights
	ErrModelNotReady = errors.New("model not ready")
)

// Classifier is the similarity operation the scheduler consumes. The HTTP
// client implements it; tests substitute fakes.
type Classifier interface {
	Classify(ctx context.Context, request *Request) (*Result, error)
}

// Request carries one packaged window to the model. Immutable once built.
type Request struct {
	RequestID   string
	WAV         []byte   // fixed-length mono 16-bit PCM at the model rate
	Prompts     []string // ordered, non-empty
	SubmittedAt time.Time
}

// Timing reports where the model spent its time on one request
type Timing struct {
	PreprocessMS float64 `json:"preprocess_ms"`
	InferenceMS  float64 `json:"inference_ms"`
	TotalMS      float64 `json:"total_ms"`
}

// Result is the model's response: global per-prompt similarity scores plus
// optional per-sub-frame scores for retroactive heatmap painting.
type Result struct {
	RawScores   map[string]float64   `json:"raw_scores"`
	FrameScores map[string][]float64 `json:"frame_scores,omitempty"`
	Timing      Timing               `json:"timing"`
}

// Config contains model client configuration
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client is the HTTP client for the similarity endpoint. One request maps to
// one HTTP call without retry; the next window is an independent
// attempt.
type Client struct {
	config     Config
	httpClient *http.Client

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewClient creates a new similarity model HTTP client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Classify sends one packaged window for scoring and blocks until the model
// responds, the context is cancelled, or the configured timeout fires.
func (c *Client) Classify(ctx context.Context, request *Request) (*Result, error) {
	if len(request.Prompts) == 0 {
		return nil, fmt.Errorf("prompt list cannot be empty")
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	result, err := c.doRequest(ctx, request)
	if err != nil {
		c.incrementFailedRequests()
		return nil, err
	}

	c.incrementSuccessRequests()
	c.updateAvgResponseTime(time.Since(startTime))

	return result, nil
}

// doRequest performs a single HTTP request to the similarity endpoint
func (c *Client) doRequest(ctx context.Context, request *Request) (*Result, error) {
	body, contentType, err := c.createMultipartRequest(request)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "SonoTag/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", ErrTransport, err)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, fmt.Errorf("%w: %s", ErrModelNotReady, strings.TrimSpace(string(respBody)))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if result.RawScores == nil {
		return nil, fmt.Errorf("%w: response missing raw_scores", ErrDecode)
	}

	// Every requested prompt must come back scored
	for _, p := range request.Prompts {
		if _, ok := result.RawScores[p]; !ok {
			return nil, fmt.Errorf("%w: response missing score for prompt '%s'", ErrDecode, p)
		}
	}

	return &result, nil
}

// createMultipartRequest builds the multipart/form-data request body: the
// WAV file plus the ordered prompt list and request metadata.
func (c *Client) createMultipartRequest(request *Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("audio", request.RequestID+".wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(request.WAV); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	// Prompt order is significant: the model scores and the heatmap rows
	// both follow it.
	promptsJSON, err := json.Marshal(request.Prompts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal prompts: %w", err)
	}

	fields := map[string]string{
		"prompts":           string(promptsJSON),
		"request_id":        request.RequestID,
		"request_timestamp": request.SubmittedAt.Format(time.RFC3339Nano),
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
	}
}
