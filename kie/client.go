package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.kie.ai"

// Task states reported by the generation service. Anything else is an
// intermediate state and should be treated as still processing.
const (
	StateSuccess = "success"
	StateFail    = "fail"
)

var ErrNoTaskID = errors.New("kie: create task response carried no task id")

// Client wraps the HTTP calls to the Kie.ai video generation API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClientFromEnv constructs a Client using environment variables.
//
// Expected variables:
//   - KIE_API_KEY: required API key for the provider
//   - KIE_BASE_URL: optional override for the API base URL (defaults to defaultBaseURL)
func NewClientFromEnv() (*Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("KIE_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("kie: KIE_API_KEY environment variable is required")
	}

	baseURL := strings.TrimSpace(os.Getenv("KIE_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return NewClient(baseURL, apiKey)
}

// NewClient builds a Client against an explicit endpoint. Mainly useful for tests.
func NewClient(baseURL, apiKey string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("kie: invalid base URL %q", baseURL)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("kie: api key is required")
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}, nil
}

type createTaskRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type createTaskResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

// CreateTask submits a generation job and returns the provider task id.
// A response without a task id is reported as ErrNoTaskID.
func (c *Client) CreateTask(ctx context.Context, model string, input any) (string, error) {
	if c == nil {
		return "", errors.New("kie: client not initialized")
	}

	body, err := json.Marshal(createTaskRequest{Model: model, Input: input})
	if err != nil {
		return "", fmt.Errorf("kie: marshal create task payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/jobs/createTask", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("kie: build create task request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("kie: create task request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("kie: read create task response: %w", err)
	}

	var decoded createTaskResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("kie: decode create task response (status %d): %w", resp.StatusCode, err)
	}

	taskID := strings.TrimSpace(decoded.Data.TaskID)
	if taskID == "" {
		if msg := strings.TrimSpace(decoded.Msg); msg != "" {
			return "", fmt.Errorf("%w: %s", ErrNoTaskID, msg)
		}
		return "", ErrNoTaskID
	}

	return taskID, nil
}

// TaskStatus is the subset of the recordInfo response the sweep consumes.
type TaskStatus struct {
	TaskID     string
	State      string
	ResultJSON string
	FailMsg    string
	FailCode   string
}

type queryTaskResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID     string `json:"taskId"`
		State      string `json:"state"`
		ResultJSON string `json:"resultJson"`
		FailMsg    string `json:"failMsg"`
		FailCode   string `json:"failCode"`
	} `json:"data"`
}

// QueryTask fetches the current state of an in-flight generation job.
func (c *Client) QueryTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	if c == nil {
		return nil, errors.New("kie: client not initialized")
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errors.New("kie: task id is required")
	}

	endpoint := fmt.Sprintf("%s/api/v1/jobs/recordInfo?taskId=%s", c.baseURL, url.QueryEscape(taskID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("kie: build query request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kie: query task %s failed: %w", taskID, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("kie: read query response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("kie: query task %s returned status %d", taskID, resp.StatusCode)
	}

	var decoded queryTaskResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("kie: decode query response: %w", err)
	}

	return &TaskStatus{
		TaskID:     decoded.Data.TaskID,
		State:      strings.TrimSpace(decoded.Data.State),
		ResultJSON: decoded.Data.ResultJSON,
		FailMsg:    decoded.Data.FailMsg,
		FailCode:   decoded.Data.FailCode,
	}, nil
}

type resultPayload struct {
	ResultURLs []string `json:"resultUrls"`
}

// ResultURLs decodes the JSON-encoded result list. Malformed or empty payloads
// yield an empty slice rather than an error; the caller stores a null result
// URL in that case.
func (s *TaskStatus) ResultURLs() []string {
	if s == nil || strings.TrimSpace(s.ResultJSON) == "" {
		return nil
	}

	var decoded resultPayload
	if err := json.Unmarshal([]byte(s.ResultJSON), &decoded); err != nil {
		return nil
	}

	urls := make([]string, 0, len(decoded.ResultURLs))
	for _, raw := range decoded.ResultURLs {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

// FailureReason formats the provider failure message plus optional error code.
func (s *TaskStatus) FailureReason() string {
	if s == nil {
		return ""
	}

	msg := strings.TrimSpace(s.FailMsg)
	if msg == "" {
		msg = "Video generation failed"
	}
	if code := strings.TrimSpace(s.FailCode); code != "" {
		return fmt.Sprintf("%s (Error code: %s)", msg, code)
	}
	return msg
}
