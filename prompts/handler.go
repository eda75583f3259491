package prompts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cinemagen_back/authorization"
)

const (
	maxTitleLength = 120
	maxBodyLength  = 3000

	categorizeTimeout = 8 * time.Second
)

// Categorizer labels a prompt body. Labelling is best effort: any failure
// leaves the entry in the default category.
type Categorizer interface {
	Categorize(ctx context.Context, prompt string) (string, error)
}

// Module owns the /prompts library endpoints.
type Module struct {
	db          *gorm.DB
	store       *PromptStore
	categorizer Categorizer
}

// RegisterRoutes opens the database, migrates the prompt table and mounts the
// library endpoints. categorizer may be nil when no assistant is configured.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, categorizer Categorizer) (*Module, error) {
	if router == nil {
		return nil, errors.New("prompts: router is required")
	}
	if guard == nil {
		return nil, errors.New("prompts: auth guard is required")
	}

	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SavedPrompt{}); err != nil {
		return nil, fmt.Errorf("prompts: migrate schema: %w", err)
	}

	module := &Module{db: db, store: NewPromptStore(db), categorizer: categorizer}

	group := router.Group("/prompts")
	group.Use(guard.RequireAuthenticated())
	{
		group.POST("", module.handleCreate)
		group.GET("", module.handleList)
		group.PUT("/:id", module.handleUpdate)
		group.DELETE("/:id", module.handleDelete)
	}

	return module, nil
}

type promptRequest struct {
	Title         string  `json:"title"`
	Body          string  `json:"body"`
	SourceVideoID *uint64 `json:"source_video_id"`
}

func (r *promptRequest) validate() (string, string, error) {
	title := strings.TrimSpace(r.Title)
	body := strings.TrimSpace(r.Body)
	if title == "" || len(title) > maxTitleLength {
		return "", "", fmt.Errorf("title must be between 1 and %d characters", maxTitleLength)
	}
	if body == "" || len(body) > maxBodyLength {
		return "", "", fmt.Errorf("body must be between 1 and %d characters", maxBodyLength)
	}
	return title, body, nil
}

func (m *Module) handleCreate(c *gin.Context) {
	userID, _ := authorization.CurrentUser(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	title, body, err := req.validate()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry := &SavedPrompt{
		UserID:        userID,
		Title:         title,
		Body:          body,
		Category:      m.categorize(c.Request.Context(), body),
		SourceVideoID: req.SourceVideoID,
	}
	if err := m.store.Create(c.Request.Context(), entry); err != nil {
		log.Printf("prompts: create prompt for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save prompt"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"prompt": entry})
}

// categorize asks the assistant for a label and falls back to "other" on any
// failure, so saving a prompt never depends on the LLM being reachable.
func (m *Module) categorize(ctx context.Context, body string) string {
	if m.categorizer == nil {
		return "other"
	}

	ctx, cancel := context.WithTimeout(ctx, categorizeTimeout)
	defer cancel()

	label, err := m.categorizer.Categorize(ctx, body)
	if err != nil || strings.TrimSpace(label) == "" {
		if err != nil {
			log.Printf("prompts: categorize failed: %v", err)
		}
		return "other"
	}
	return label
}

func (m *Module) handleList(c *gin.Context) {
	userID, _ := authorization.CurrentUser(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	entries, err := m.store.ListByUser(c.Request.Context(), userID, c.Query("category"))
	if err != nil {
		log.Printf("prompts: list prompts for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list prompts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"prompts": entries})
}

func (m *Module) handleUpdate(c *gin.Context) {
	userID, _ := authorization.CurrentUser(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	id, ok := parsePromptParam(c)
	if !ok {
		return
	}

	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	title, body, err := req.validate()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := m.store.Update(c.Request.Context(), id, userID, title, body)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "prompt not found"})
			return
		}
		log.Printf("prompts: update prompt %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update prompt"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"prompt": entry})
}

func (m *Module) handleDelete(c *gin.Context) {
	userID, _ := authorization.CurrentUser(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	id, ok := parsePromptParam(c)
	if !ok {
		return
	}

	if err := m.store.DeleteOwned(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "prompt not found"})
			return
		}
		log.Printf("prompts: delete prompt %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete prompt"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func parsePromptParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prompt id"})
		return 0, false
	}
	return id, true
}
