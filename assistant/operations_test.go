package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newStubClient(t *testing.T, reply string) (*Client, *string) {
	t.Helper()

	var lastUserContent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Fatalf("unexpected message shape: %+v", req.Messages)
		}
		lastUserContent = req.Messages[1].Content

		response := chatResponse{}
		response.Choices = append(response.Choices, struct {
			Message chatMessage `json:"message"`
		}{Message: chatMessage{Role: "assistant", Content: reply}})
		json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)

	return &Client{
		httpClient: server.Client(),
		baseURL:    server.URL,
		apiKey:     "test-key",
		modelID:    "test-model",
	}, &lastUserContent
}

func TestImprovePrompt(t *testing.T) {
	client, _ := newStubClient(t, `"A lone astronaut drifts past a neon nebula, slow dolly shot"`)

	improved, err := client.ImprovePrompt(context.Background(), "astronaut in space")
	if err != nil {
		t.Fatalf("ImprovePrompt: %v", err)
	}
	if improved != "A lone astronaut drifts past a neon nebula, slow dolly shot" {
		t.Fatalf("unexpected improvement: %q", improved)
	}
}

func TestSplitScenesParsesFencedJSON(t *testing.T) {
	reply := "```json\n{\"scenes\":[{\"description\":\"sunrise over hills\",\"duration\":4},{\"description\":\"village market opens\",\"duration\":4}]}\n```"
	client, lastUser := newStubClient(t, reply)

	scenes, err := client.SplitScenes(context.Background(), "a day in a mountain village", 2, 8)
	if err != nil {
		t.Fatalf("SplitScenes: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("got %d scenes, want 2", len(scenes))
	}
	if scenes[0].Duration+scenes[1].Duration != 8 {
		t.Fatalf("durations do not sum to total: %+v", scenes)
	}
	if *lastUser == "" {
		t.Fatal("user content was not sent")
	}
}

func TestSplitScenesAbsorbsRoundingDrift(t *testing.T) {
	reply := `{"scenes":[{"description":"a","duration":3},{"description":"b","duration":3},{"description":"c","duration":3}]}`
	client, _ := newStubClient(t, reply)

	scenes, err := client.SplitScenes(context.Background(), "anything", 3, 10)
	if err != nil {
		t.Fatalf("SplitScenes: %v", err)
	}
	if scenes[2].Duration != 4 {
		t.Fatalf("drift not absorbed: %+v", scenes)
	}
}

func TestSplitScenesValidatesInput(t *testing.T) {
	client, _ := newStubClient(t, "{}")

	if _, err := client.SplitScenes(context.Background(), "x", 1, 10); err == nil {
		t.Fatal("expected error for scene count below 2")
	}
	if _, err := client.SplitScenes(context.Background(), "x", 4, 2); err == nil {
		t.Fatal("expected error when total is shorter than scene count")
	}
}

func TestCategorizeFallsBackToOther(t *testing.T) {
	client, _ := newStubClient(t, "Nature.")
	label, err := client.Categorize(context.Background(), "a forest in autumn")
	if err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	if label != "nature" {
		t.Fatalf("label = %q, want nature", label)
	}

	client, _ = newStubClient(t, "this is definitely a landscape video")
	label, err = client.Categorize(context.Background(), "a forest in autumn")
	if err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	if label != "other" {
		t.Fatalf("label = %q, want other", label)
	}
}
