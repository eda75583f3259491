package kie

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateTaskReturnsTaskID(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"task-123"}}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	taskID, err := client.CreateTask(context.Background(), "sora-2-text-to-video", map[string]any{"prompt": "a cat"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if taskID != "task-123" {
		t.Fatalf("unexpected task id %q", taskID)
	}
	if gotPath != "/api/v1/jobs/createTask" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody["model"] != "sora-2-text-to-video" {
		t.Fatalf("unexpected model in payload: %v", gotBody["model"])
	}
}

func TestCreateTaskWithoutTaskID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":422,"msg":"input rejected","data":{}}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.CreateTask(context.Background(), "sora-2-text-to-video", map[string]any{})
	if !errors.Is(err, ErrNoTaskID) {
		t.Fatalf("expected ErrNoTaskID, got %v", err)
	}
}

func TestQueryTask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs/recordInfo" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("taskId") != "task-9" {
			t.Errorf("unexpected taskId %q", r.URL.Query().Get("taskId"))
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"task-9","state":"success","resultJson":"{\"resultUrls\":[\"https://x/y.mp4\"]}"}}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	status, err := client.QueryTask(context.Background(), "task-9")
	if err != nil {
		t.Fatalf("QueryTask: %v", err)
	}
	if status.State != StateSuccess {
		t.Fatalf("unexpected state %q", status.State)
	}
	urls := status.ResultURLs()
	if len(urls) != 1 || urls[0] != "https://x/y.mp4" {
		t.Fatalf("unexpected result urls %v", urls)
	}
}

func TestResultURLsToleratesMalformedJSON(t *testing.T) {
	status := &TaskStatus{ResultJSON: "{not json"}
	if urls := status.ResultURLs(); urls != nil {
		t.Fatalf("expected nil urls for malformed payload, got %v", urls)
	}

	status = &TaskStatus{}
	if urls := status.ResultURLs(); urls != nil {
		t.Fatalf("expected nil urls for empty payload, got %v", urls)
	}
}

func TestFailureReason(t *testing.T) {
	status := &TaskStatus{FailMsg: "Content policy violation", FailCode: "C1"}
	if got := status.FailureReason(); got != "Content policy violation (Error code: C1)" {
		t.Fatalf("unexpected reason %q", got)
	}

	status = &TaskStatus{FailMsg: "boom"}
	if got := status.FailureReason(); got != "boom" {
		t.Fatalf("unexpected reason %q", got)
	}

	status = &TaskStatus{}
	if got := status.FailureReason(); got != "Video generation failed" {
		t.Fatalf("unexpected default reason %q", got)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("ftp://example.com", "k"); err == nil {
		t.Fatalf("expected error for non-http base URL")
	}
	if _, err := NewClient("https://api.kie.ai", " "); err == nil {
		t.Fatalf("expected error for empty api key")
	}
}
