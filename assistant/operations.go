package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const improveSystemPrompt = `You rewrite prompts for an AI video generator.
Keep the user's intent and subject, add concrete visual detail: camera
movement, lighting, mood, setting. Answer with the rewritten prompt only,
no commentary, at most 150 words.`

const splitSystemPrompt = `You split a video idea into a storyboard. Answer
with strict JSON of the form {"scenes":[{"description":"...","duration":N}]}
where duration is whole seconds. Scene durations must add up exactly to the
requested total. No markdown, no commentary.`

const categorizeSystemPrompt = `You label video generation prompts with one
category from this list: cinematic, nature, people, animation, product,
abstract, other. Answer with the category word only.`

// Scene is one storyboard entry proposed by the assistant.
type Scene struct {
	Description string `json:"description"`
	Duration    int    `json:"duration"`
}

// PromptCategories is the closed label set used by Categorize.
var PromptCategories = []string{"cinematic", "nature", "people", "animation", "product", "abstract", "other"}

// ImprovePrompt rewrites a rough prompt into a more cinematic one.
func (c *Client) ImprovePrompt(ctx context.Context, prompt string) (string, error) {
	improved, err := c.complete(ctx, improveSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	improved = strings.Trim(improved, "\"")
	if improved == "" {
		return "", errors.New("assistant: empty improvement")
	}
	return improved, nil
}

// SplitScenes breaks a prompt into sceneCount storyboard scenes summing to
// totalSeconds.
func (c *Client) SplitScenes(ctx context.Context, prompt string, sceneCount, totalSeconds int) ([]Scene, error) {
	if sceneCount < 2 || sceneCount > 5 {
		return nil, errors.New("assistant: scene count must be between 2 and 5")
	}
	if totalSeconds < sceneCount {
		return nil, errors.New("assistant: total duration is too short for the scene count")
	}

	user := fmt.Sprintf("Split into %d scenes with a total of %d seconds:\n%s", sceneCount, totalSeconds, prompt)
	raw, err := c.complete(ctx, splitSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Scenes []Scene `json:"scenes"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &decoded); err != nil {
		return nil, fmt.Errorf("assistant: parse scenes: %w", err)
	}
	if len(decoded.Scenes) == 0 {
		return nil, errors.New("assistant: no scenes returned")
	}

	sum := 0
	for i := range decoded.Scenes {
		decoded.Scenes[i].Description = strings.TrimSpace(decoded.Scenes[i].Description)
		if decoded.Scenes[i].Description == "" {
			return nil, errors.New("assistant: scene with empty description")
		}
		if decoded.Scenes[i].Duration < 1 {
			decoded.Scenes[i].Duration = 1
		}
		sum += decoded.Scenes[i].Duration
	}
	// The model occasionally misses the total by a second; absorb the
	// difference in the last scene instead of failing the request.
	if diff := totalSeconds - sum; diff != 0 {
		last := &decoded.Scenes[len(decoded.Scenes)-1]
		if last.Duration+diff < 1 {
			return nil, errors.New("assistant: scene durations do not fit the total")
		}
		last.Duration += diff
	}

	return decoded.Scenes, nil
}

// Categorize labels a prompt with one of PromptCategories. Anything the model
// says outside the label set falls back to "other".
func (c *Client) Categorize(ctx context.Context, prompt string) (string, error) {
	raw, err := c.complete(ctx, categorizeSystemPrompt, prompt)
	if err != nil {
		return "", err
	}

	label := strings.ToLower(strings.Trim(strings.TrimSpace(raw), ".\"'"))
	for _, category := range PromptCategories {
		if label == category {
			return category, nil
		}
	}
	return "other", nil
}

// stripCodeFence unwraps ```json ... ``` blocks some models insist on.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
