package assistant

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cinemagen_back/authorization"
)

// Module exposes the prompt assistance endpoints and lends its client to
// other modules that want best-effort labelling.
type Module struct {
	client *Client
}

// Client returns the underlying chat client, or nil when the assistant is not
// configured.
func (m *Module) Client() *Client {
	if m == nil {
		return nil
	}
	return m.client
}

func (m *Module) noClient(c *gin.Context) bool {
	if m.client != nil {
		return false
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "prompt assistant is not available"})
	return true
}

// RegisterRoutes mounts the /assistant endpoints. Without an LLM_API_KEY the
// routes still exist but answer 503.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard) (*Module, error) {
	client, err := NewClientFromEnv()
	if err != nil {
		return nil, err
	}
	if client == nil {
		log.Printf("assistant: LLM_API_KEY not set, prompt assistance disabled")
	}

	module := &Module{client: client}

	group := router.Group("/assistant")
	group.Use(guard.RequireAuthenticated())
	{
		group.POST("/improve", module.handleImprove)
		group.POST("/split", module.handleSplit)
	}

	return module, nil
}

type improveRequest struct {
	Prompt string `json:"prompt"`
}

func (m *Module) handleImprove(c *gin.Context) {
	if m.noClient(c) {
		return
	}

	var req improveRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	improved, err := m.client.ImprovePrompt(c.Request.Context(), req.Prompt)
	if err != nil {
		log.Printf("assistant: improve prompt: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to improve prompt"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"prompt": improved})
}

type splitRequest struct {
	Prompt     string `json:"prompt"`
	SceneCount int    `json:"scene_count"`
	Duration   int    `json:"duration"`
}

func (m *Module) handleSplit(c *gin.Context) {
	if m.noClient(c) {
		return
	}

	var req splitRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}
	if req.SceneCount == 0 {
		req.SceneCount = 3
	}
	if req.Duration == 0 {
		req.Duration = 10
	}

	scenes, err := m.client.SplitScenes(c.Request.Context(), req.Prompt, req.SceneCount, req.Duration)
	if err != nil {
		log.Printf("assistant: split scenes: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to split prompt into scenes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"scenes": scenes})
}
