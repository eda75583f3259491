package videos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the record does not exist or belongs to another user.
	ErrNotFound = errors.New("videos: record not found")
	// ErrNotPending indicates a lifecycle write raced with another transition
	// and the record was no longer in the expected state.
	ErrNotPending = errors.New("videos: record is not pending")
)

// VideoStore persists generation records and guards their lifecycle
// transitions. Every state change is a conditional update keyed on the
// current status, so concurrent writers cannot rewind a record or attach a
// second external task to it.
type VideoStore struct {
	db *gorm.DB
}

// NewVideoStore wraps an open database handle.
func NewVideoStore(db *gorm.DB) *VideoStore {
	return &VideoStore{db: db}
}

// Create inserts a new pending record.
func (s *VideoStore) Create(ctx context.Context, video *Video) error {
	if video == nil {
		return errors.New("videos: video is required")
	}
	if video.Status == "" {
		video.Status = StatusPending
	}
	if err := s.db.WithContext(ctx).Create(video).Error; err != nil {
		return fmt.Errorf("videos: create record: %w", err)
	}
	return nil
}

// FindOwned loads a record that belongs to the given user.
func (s *VideoStore) FindOwned(ctx context.Context, id, userID uint64) (*Video, error) {
	var video Video
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&video).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("videos: load record: %w", err)
	}
	return &video, nil
}

// ListByUser returns the user's records, newest first, optionally filtered by
// status.
func (s *VideoStore) ListByUser(ctx context.Context, userID uint64, status string) ([]Video, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if trimmed := strings.TrimSpace(status); trimmed != "" {
		query = query.Where("status = ?", trimmed)
	}

	var records []Video
	if err := query.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("videos: list records: %w", err)
	}
	return records, nil
}

// ListActiveByUser returns the user's records that can still change state.
func (s *VideoStore) ListActiveByUser(ctx context.Context, userID uint64) ([]Video, error) {
	var records []Video
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []string{StatusPending, StatusProcessing}).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("videos: list active records: %w", err)
	}
	return records, nil
}

// ListProcessing returns every record waiting on the external service, i.e.
// processing records that already carry a task id.
func (s *VideoStore) ListProcessing(ctx context.Context) ([]Video, error) {
	var records []Video
	err := s.db.WithContext(ctx).
		Where("status = ? AND task_id IS NOT NULL AND task_id <> ''", StatusProcessing).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("videos: list processing records: %w", err)
	}
	return records, nil
}

// MarkProcessing attaches the external task id and moves the record from
// pending to processing. The task id is written at most once: the update is
// conditioned on the record still being pending without a task id.
func (s *VideoStore) MarkProcessing(ctx context.Context, id uint64, taskID string) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return errors.New("videos: task id is required")
	}

	result := s.db.WithContext(ctx).Model(&Video{}).
		Where("id = ? AND status = ? AND (task_id IS NULL OR task_id = '')", id, StatusPending).
		Updates(map[string]any{"status": StatusProcessing, "task_id": taskID})
	if result.Error != nil {
		return fmt.Errorf("videos: mark processing: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

// MarkSuccess finalises a processing record with its result URL. Terminal
// records are never rewritten.
func (s *VideoStore) MarkSuccess(ctx context.Context, id uint64, resultURL *string) error {
	result := s.db.WithContext(ctx).Model(&Video{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]any{"status": StatusSuccess, "result_url": resultURL, "fail_reason": nil})
	if result.Error != nil {
		return fmt.Errorf("videos: mark success: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

// MarkFailed finalises a non-terminal record with a failure reason.
func (s *VideoStore) MarkFailed(ctx context.Context, id uint64, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Video generation failed"
	}

	result := s.db.WithContext(ctx).Model(&Video{}).
		Where("id = ? AND status IN ?", id, []string{StatusPending, StatusProcessing}).
		Updates(map[string]any{"status": StatusFail, "fail_reason": reason, "result_url": nil})
	if result.Error != nil {
		return fmt.Errorf("videos: mark failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

// DeleteOwned removes a record that belongs to the given user.
func (s *VideoStore) DeleteOwned(ctx context.Context, id, userID uint64) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&Video{})
	if result.Error != nil {
		return fmt.Errorf("videos: delete record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
