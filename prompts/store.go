package prompts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound indicates the prompt does not exist or belongs to another user.
var ErrNotFound = errors.New("prompts: prompt not found")

// SavedPrompt is one library entry a user keeps for reuse.
type SavedPrompt struct {
	ID            uint64    `gorm:"primaryKey" json:"id"`
	UserID        uint64    `gorm:"not null;index" json:"user_id"`
	Title         string    `gorm:"size:120;not null" json:"title"`
	Body          string    `gorm:"type:text;not null" json:"body"`
	Category      string    `gorm:"size:32;not null;default:'other'" json:"category"`
	SourceVideoID *uint64   `gorm:"index" json:"source_video_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName pins the storage table for the prompt library.
func (SavedPrompt) TableName() string {
	return "saved_prompts"
}

// PromptStore persists the per-user prompt library.
type PromptStore struct {
	db *gorm.DB
}

// NewPromptStore wraps an open database handle.
func NewPromptStore(db *gorm.DB) *PromptStore {
	return &PromptStore{db: db}
}

// Create inserts a library entry.
func (s *PromptStore) Create(ctx context.Context, prompt *SavedPrompt) error {
	if prompt == nil {
		return errors.New("prompts: prompt is required")
	}
	if prompt.Category == "" {
		prompt.Category = "other"
	}
	if err := s.db.WithContext(ctx).Create(prompt).Error; err != nil {
		return fmt.Errorf("prompts: create prompt: %w", err)
	}
	return nil
}

// ListByUser returns the user's library, newest first, optionally filtered by
// category.
func (s *PromptStore) ListByUser(ctx context.Context, userID uint64, category string) ([]SavedPrompt, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if trimmed := strings.TrimSpace(category); trimmed != "" {
		query = query.Where("category = ?", trimmed)
	}

	var entries []SavedPrompt
	if err := query.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("prompts: list prompts: %w", err)
	}
	return entries, nil
}

// Update rewrites the title and body of one of the user's entries.
func (s *PromptStore) Update(ctx context.Context, id, userID uint64, title, body string) (*SavedPrompt, error) {
	result := s.db.WithContext(ctx).Model(&SavedPrompt{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"title": title, "body": body})
	if result.Error != nil {
		return nil, fmt.Errorf("prompts: update prompt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var entry SavedPrompt
	if err := s.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return nil, fmt.Errorf("prompts: reload prompt: %w", err)
	}
	return &entry, nil
}

// DeleteOwned removes one of the user's entries.
func (s *PromptStore) DeleteOwned(ctx context.Context, id, userID uint64) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&SavedPrompt{})
	if result.Error != nil {
		return fmt.Errorf("prompts: delete prompt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
