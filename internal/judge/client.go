// Package judge provides the judgment-service client used for automated
// screening: prompt construction, the chat API call, and verdict validation.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/helixir/screening-service/internal/domain"
)

// maxResponseBody caps how much of a judgment response is read.
const maxResponseBody = 10 << 20

// chatRequest is the request body for the judgment chat API.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

// chatMessage represents a single message in the chat API.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatOptions carries model sampling parameters.
type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

// chatResponse is the response body from the judgment chat API.
type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// chatErrorResponse wraps the error payload from the judgment chat API.
type chatErrorResponse struct {
	Error string `json:"error"`
}

// Result is one judgment-service call outcome: the validated verdict plus the
// call metadata the audit log records.
type Result struct {
	Verdict      *Verdict
	RawResponse  string
	SystemPrompt string
	UserPrompt   string
	Model        string
	ThinkingMode bool
	ResponseTime time.Duration
	RequestedAt  time.Time
}

// Config holds the parameters needed to create a judgment client.
// This is defined in the judge package to avoid importing the config package.
type Config struct {
	// BaseURL is the judgment service base URL.
	BaseURL string
	// APIKey is an optional bearer token for remote endpoints.
	APIKey string
	// Model is the model identifier (e.g., "qwen3:32b").
	Model string
	// ThinkingMode enables the model's extended reasoning mode.
	ThinkingMode bool
	// Temperature is the sampling temperature.
	Temperature float64
}

// Client screens units through the judgment service's chat API.
//
// The client makes exactly one API call per Screen invocation; retry policy
// lives with the caller, which needs to distinguish transient failures from
// contract violations.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	thinkingMode bool
	temperature  float64
}

// NewClient creates a new judgment client with the given configuration.
// The timeout parameter controls the HTTP client timeout for API calls.
func NewClient(cfg Config, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		thinkingMode: cfg.ThinkingMode,
		temperature:  cfg.Temperature,
	}
}

// Model returns the model identifier being used.
func (c *Client) Model() string {
	return c.model
}

// Screen requests a judgment for the unit at the given pass and validates the
// response against the verdict contract.
//
// Failures come in two flavors the caller treats differently: an *APIError
// (the call itself failed; IsTransient reports retryability) and a
// *ContractViolationError (the call succeeded but the output broke the
// contract). Both carry enough detail for the audit log; on a contract
// violation the returned Result holds the raw response and call metadata.
func (c *Client) Screen(ctx context.Context, pass domain.Pass, unit *domain.ReviewUnit) (*Result, error) {
	systemPrompt, userPrompt := BuildPrompts(pass, unit)

	// Thinking-mode toggle is a prompt-level switch on the model side.
	llmUserPrompt := userPrompt
	if c.thinkingMode {
		llmUserPrompt = "/think\n" + llmUserPrompt
	} else {
		llmUserPrompt = "/no_think\n" + llmUserPrompt
	}

	apiReq := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: llmUserPrompt},
		},
		Stream:  false,
		Options: &chatOptions{Temperature: c.temperature},
	}

	result := &Result{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Model:        c.model,
		ThinkingMode: c.thinkingMode,
		RequestedAt:  time.Now().UTC(),
	}

	start := time.Now()
	resp, err := c.sendRequest(ctx, apiReq)
	result.ResponseTime = time.Since(start)
	if err != nil {
		return result, err
	}

	result.RawResponse = resp.Message.Content
	if resp.Model != "" {
		result.Model = resp.Model
	}

	verdict, err := ParseVerdict(pass, resp.Message.Content)
	if err != nil {
		return result, err
	}

	result.Verdict = verdict
	return result, nil
}

// sendRequest sends a single request to the judgment chat API and returns the
// parsed response or an error.
func (c *Client) sendRequest(ctx context.Context, apiReq chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("judge: failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("judge: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are considered transient and eligible for retry.
		return nil, &APIError{
			StatusCode: 0,
			Message:    fmt.Sprintf("request failed: %v", err),
			Type:       "network_error",
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, &APIError{
			StatusCode: 0,
			Message:    fmt.Sprintf("failed to read response body: %v", err),
			Type:       "network_error",
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseChatAPIError(httpResp.StatusCode, respBody)
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		// A mangled envelope is indistinguishable from a truncated response;
		// classify it as transient so the caller may retry.
		return nil, &APIError{
			StatusCode: 0,
			Message:    fmt.Sprintf("malformed response envelope: %v", err),
			Type:       "malformed_response",
		}
	}

	return &resp, nil
}

// parseChatAPIError parses a judgment API error from the response status code and body.
func parseChatAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp chatErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr.Message = errResp.Error
	}

	return apiErr
}
