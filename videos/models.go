package videos

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Generation record lifecycle. Transitions are monotonic: pending may move to
// processing or fail, processing may move to success or fail, and the terminal
// states never change again.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSuccess    = "success"
	StatusFail       = "fail"
)

// Model catalog understood by the external generation service.
const (
	ModelTextToVideo     = "sora-2-text-to-video"
	ModelImageToVideo    = "sora-2-image-to-video"
	ModelProTextToVideo  = "sora-2-pro-text-to-video"
	ModelProImageToVideo = "sora-2-pro-image-to-video"
	ModelProStoryboard   = "sora-2-pro-storyboard"
)

// FramesPerSecond converts between requested seconds and the stored n_frames.
const FramesPerSecond = 30

// Video is one persisted generation request tracked through its lifecycle.
// ImageRefs is always a JSON array of bucket-relative object paths; a single
// reference image is a one-element array, so readers never have to guess the
// shape of the column.
type Video struct {
	ID              uint64         `gorm:"primaryKey" json:"id"`
	UserID          uint64         `gorm:"not null;index" json:"user_id"`
	Model           string         `gorm:"size:64;not null" json:"model"`
	Prompt          string         `gorm:"type:text;not null" json:"prompt"`
	AspectRatio     string         `gorm:"size:8;not null" json:"aspect_ratio"`
	NFrames         int            `gorm:"not null" json:"n_frames"`
	ImageRefs       datatypes.JSON `gorm:"type:json" json:"image_refs,omitempty"`
	RemoveWatermark bool           `gorm:"not null;default:false" json:"remove_watermark"`
	Status          string         `gorm:"size:16;not null;default:'pending';index" json:"status"`
	TaskID          *string        `gorm:"size:120;index" json:"task_id,omitempty"`
	ResultURL       *string        `gorm:"size:512" json:"result_url,omitempty"`
	FailReason      *string        `gorm:"type:text" json:"fail_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TableName pins the storage table for generation records.
func (Video) TableName() string {
	return "videos"
}

// Seconds converts the stored frame count back to whole seconds.
func (v *Video) Seconds() int {
	if v == nil || v.NFrames <= 0 {
		return 0
	}
	return v.NFrames / FramesPerSecond
}

// ImagePaths decodes the stored reference list. The column is written as a
// JSON array or left null, never a bare string.
func (v *Video) ImagePaths() []string {
	if v == nil || len(v.ImageRefs) == 0 {
		return nil
	}

	var paths []string
	if err := json.Unmarshal(v.ImageRefs, &paths); err != nil {
		return nil
	}

	cleaned := make([]string, 0, len(paths))
	for _, raw := range paths {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

// EncodeImageRefs serialises reference paths for storage. Empty input yields a
// null column.
func EncodeImageRefs(paths []string) datatypes.JSON {
	cleaned := make([]string, 0, len(paths))
	for _, raw := range paths {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}

	encoded, err := json.Marshal(cleaned)
	if err != nil {
		return nil
	}
	return datatypes.JSON(encoded)
}

// ModelCost returns the credit price of a model: 2 for storyboards, 1 for
// everything else.
func ModelCost(model string) int {
	if model == ModelProStoryboard {
		return 2
	}
	return 1
}

// IsKnownModel reports whether the model belongs to the supported catalog.
func IsKnownModel(model string) bool {
	switch model {
	case ModelTextToVideo, ModelImageToVideo, ModelProTextToVideo, ModelProImageToVideo, ModelProStoryboard:
		return true
	default:
		return false
	}
}

// IsProModel reports whether the model requires the pro tier.
func IsProModel(model string) bool {
	return strings.HasPrefix(model, "sora-2-pro-")
}

// IsImageToVideoModel reports whether the model consumes a reference image.
func IsImageToVideoModel(model string) bool {
	return strings.Contains(model, "image-to-video")
}

// IsStoryboardModel reports whether the model renders a multi-scene storyboard.
func IsStoryboardModel(model string) bool {
	return model == ModelProStoryboard
}
