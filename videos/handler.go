package videos

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cinemagen_back/authorization"
	"cinemagen_back/cache"
	"cinemagen_back/kie"
	"cinemagen_back/storage"
)

const (
	minPromptLength = 10
	maxPromptLength = 2000

	minDurationSeconds = 1
	maxDurationSeconds = 10

	minStoryboardScenes = 2
	maxStoryboardScenes = 5
)

// Module owns the generation record endpoints: record creation, the task
// submission procedure, the reconciliation sweep, uploads, and the live
// status stream.
type Module struct {
	db         *gorm.DB
	store      *VideoStore
	credits    *authorization.CreditStore
	inputs     *storage.InputStorage
	submitter  *Submitter
	reconciler *Reconciler
	sweepToken string
}

// RegisterRoutes opens the database, wires the external generation client,
// and mounts the /videos endpoints. Object storage and Redis are optional:
// without storage only text-only models work, without Redis submissions are
// not rate limited.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard) (*Module, error) {
	if router == nil {
		return nil, errors.New("videos: router is required")
	}
	if guard == nil {
		return nil, errors.New("videos: auth guard is required")
	}

	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Video{}); err != nil {
		return nil, fmt.Errorf("videos: migrate schema: %w", err)
	}

	tasks, err := kie.NewClientFromEnv()
	if err != nil {
		return nil, err
	}

	inputs, err := storage.NewInputStorageFromEnv()
	if err != nil {
		return nil, err
	}
	if inputs == nil {
		log.Printf("videos: object storage not configured, image uploads disabled")
	}

	var limiter RateLimiter
	if redisClient, err := cache.GetRedisClient(); err != nil {
		log.Printf("videos: redis unavailable, submission rate limiting disabled: %v", err)
	} else {
		limiter = cache.NewFixedWindowLimiter(redisClient)
	}

	var signer SignedURLProvider
	if inputs != nil {
		signer = inputs
	}

	store := NewVideoStore(db)
	credits := authorization.NewCreditStore(db)
	submitter, err := NewSubmitter(store, credits, tasks, limiter, signer)
	if err != nil {
		return nil, err
	}
	reconciler, err := NewReconciler(store, tasks)
	if err != nil {
		return nil, err
	}

	module := &Module{
		db:         db,
		store:      store,
		credits:    credits,
		inputs:     inputs,
		submitter:  submitter,
		reconciler: reconciler,
		sweepToken: strings.TrimSpace(os.Getenv("SWEEP_TOKEN")),
	}

	secured := router.Group("/videos")
	secured.Use(guard.RequireAuthenticated())
	{
		secured.POST("", module.handleCreate)
		secured.POST("/storyboard", module.handleCreateStoryboard)
		secured.POST("/uploads", module.handleUpload)
		secured.GET("", module.handleList)
		secured.GET("/stream", module.handleStream)
		secured.GET("/:id", module.handleGet)
		secured.DELETE("/:id", module.handleDelete)
		secured.POST("/:id/generate", module.handleGenerate)
	}

	// The sweep is driven by an external scheduler carrying the shared token,
	// or by an admin session.
	router.POST("/videos/sweep", module.sweepAuth(guard), module.handleSweep)

	return module, nil
}

type createVideoRequest struct {
	Prompt          string `json:"prompt"`
	Model           string `json:"model"`
	AspectRatio     string `json:"aspect_ratio"`
	Duration        int    `json:"duration"`
	ImageRef        string `json:"image_ref"`
	RemoveWatermark bool   `json:"remove_watermark"`
}

// handleCreate persists a pending record for the single-prompt models.
func (m *Module) handleCreate(c *gin.Context) {
	userID, roles := authorization.CurrentUser(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req createVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	prompt := strings.TrimSpace(req.Prompt)
	if length := utf8.RuneCountInString(prompt); length < minPromptLength || length > maxPromptLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("prompt must be between %d and %d characters", minPromptLength, maxPromptLength)})
		return
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = ModelTextToVideo
	}
	if !IsKnownModel(model) || IsStoryboardModel(model) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported model"})
		return
	}

	if !IsValidAspect(req.AspectRatio) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "aspect_ratio must be 16:9 or 9:16"})
		return
	}
	if req.Duration < minDurationSeconds || req.Duration > maxDurationSeconds {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("duration must be between %d and %d seconds", minDurationSeconds, maxDurationSeconds)})
		return
	}

	imageRef := strings.TrimSpace(req.ImageRef)
	if IsImageToVideoModel(model) {
		if imageRef == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image_ref is required for image-to-video models"})
			return
		}
	} else if imageRef != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_ref is only accepted by image-to-video models"})
		return
	}

	if !m.allowProModel(c, userID, roles, model) {
		return
	}

	var refs []string
	if imageRef != "" {
		refs = []string{imageRef}
	}

	video := &Video{
		UserID:          userID,
		Model:           model,
		Prompt:          prompt,
		AspectRatio:     req.AspectRatio,
		NFrames:         req.Duration * FramesPerSecond,
		ImageRefs:       EncodeImageRefs(refs),
		RemoveWatermark: req.RemoveWatermark,
		Status:          StatusPending,
	}
	if err := m.store.Create(c.Request.Context(), video); err != nil {
		log.Printf("videos: create record for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create record"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"video": video})
}

type storyboardScene struct {
	Description string `json:"description"`
	Duration    int    `json:"duration"`
}

type createStoryboardRequest struct {
	Scenes          []storyboardScene `json:"scenes"`
	AspectRatio     string            `json:"aspect_ratio"`
	ImageRefs       []string          `json:"image_refs"`
	RemoveWatermark bool              `json:"remove_watermark"`
}

// handleCreateStoryboard persists a pending record for the storyboard model.
// The scene list is folded into one labelled prompt; the per-scene timing is
// preserved in the text and the total drives the frame count.
func (m *Module) handleCreateStoryboard(c *gin.Context) {
	userID, roles := authorization.CurrentUser(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req createStoryboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	if len(req.Scenes) < minStoryboardScenes || len(req.Scenes) > maxStoryboardScenes {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("storyboard requires between %d and %d scenes", minStoryboardScenes, maxStoryboardScenes)})
		return
	}
	if !IsValidAspect(req.AspectRatio) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "aspect_ratio must be 16:9 or 9:16"})
		return
	}

	totalSeconds := 0
	lines := make([]string, 0, len(req.Scenes))
	for i, scene := range req.Scenes {
		description := strings.TrimSpace(scene.Description)
		if description == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("scene %d is missing a description", i+1)})
			return
		}
		if scene.Duration < minDurationSeconds {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("scene %d duration must be at least %d second", i+1, minDurationSeconds)})
			return
		}
		totalSeconds += scene.Duration
		lines = append(lines, fmt.Sprintf("Scene %d (%ds): %s", i+1, scene.Duration, description))
	}
	if totalSeconds > maxDurationSeconds {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("total duration must not exceed %d seconds", maxDurationSeconds)})
		return
	}

	if !m.allowProModel(c, userID, roles, ModelProStoryboard) {
		return
	}

	video := &Video{
		UserID:          userID,
		Model:           ModelProStoryboard,
		Prompt:          strings.Join(lines, "\n\n"),
		AspectRatio:     req.AspectRatio,
		NFrames:         totalSeconds * FramesPerSecond,
		ImageRefs:       EncodeImageRefs(req.ImageRefs),
		RemoveWatermark: req.RemoveWatermark,
		Status:          StatusPending,
	}
	if err := m.store.Create(c.Request.Context(), video); err != nil {
		log.Printf("videos: create storyboard record for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create record"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"video": video})
}

// allowProModel rejects pro-model creation for free accounts. Admins are
// exempt. Returns false after writing the response.
func (m *Module) allowProModel(c *gin.Context, userID uint64, roles []string, model string) bool {
	if !IsProModel(model) || authorization.HasRole(roles, "admin") {
		return true
	}

	tier, err := m.credits.TierOf(c.Request.Context(), userID)
	if err != nil {
		log.Printf("videos: resolve tier for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve account tier"})
		return false
	}
	if tier != authorization.TierPro {
		c.JSON(http.StatusForbidden, gin.H{"error": "pro tier required for this model"})
		return false
	}
	return true
}

// handleUpload stores a reference image and returns its object path. The
// path, not a URL, is what record creation accepts; a signed URL is minted
// later at submission time.
func (m *Module) handleUpload(c *gin.Context) {
	userID, _ := authorization.CurrentUser(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	if m.inputs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image uploads are not available"})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}

	path, err := m.inputs.UploadImage(c.Request.Context(), file, strconv.FormatUint(userID, 10))
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedImage) || errors.Is(err, storage.ErrImageTooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("videos: upload image for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store image"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"image_ref": path})
}

// handleGenerate runs the task submission procedure for a pending record.
func (m *Module) handleGenerate(c *gin.Context) {
	userID, roles := authorization.CurrentUser(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	videoID, ok := parseRecordParam(c)
	if !ok {
		return
	}

	video, err := m.submitter.Submit(c.Request.Context(), userID, authorization.HasRole(roles, "admin"), videoID)
	if err != nil {
		var rateErr *RateLimitError
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		case errors.Is(err, ErrNotPending):
			c.JSON(http.StatusConflict, gin.H{"error": "video has already been submitted"})
		case errors.As(err, &rateErr):
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(rateErr.RetryAt)))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "retry_at": rateErr.RetryAt})
		case errors.Is(err, ErrInsufficientCredits):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient credits"})
		case errors.Is(err, ErrCreditConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "credit balance changed, please retry"})
		case errors.Is(err, ErrStorageUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage is not available"})
		case errors.Is(err, ErrTaskCreation):
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create generation task"})
		default:
			log.Printf("videos: submit record %d: %v", videoID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit video"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"video": video})
}

// retryAfterSeconds converts the window reset time into the delay-seconds
// form the Retry-After header expects, never below one second.
func retryAfterSeconds(resetAt time.Time) int {
	seconds := int(time.Until(resetAt).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// sweepAuth admits a matching X-Sweep-Token without a session; otherwise the
// request must carry an admin JWT.
func (m *Module) sweepAuth(guard *authorization.Guard) gin.HandlerFunc {
	requireAuth := guard.RequireAuthenticated()
	return func(c *gin.Context) {
		provided := strings.TrimSpace(c.GetHeader("X-Sweep-Token"))
		if m.sweepToken != "" && provided != "" {
			if subtle.ConstantTimeCompare([]byte(provided), []byte(m.sweepToken)) == 1 {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid sweep token"})
			return
		}

		requireAuth(c)
		if c.IsAborted() {
			return
		}
		if _, roles := authorization.CurrentUser(c); !authorization.HasRole(roles, "admin") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		}
	}
}

// handleSweep reconciles every in-flight record against the external service.
func (m *Module) handleSweep(c *gin.Context) {
	outcomes, err := m.reconciler.Sweep(c.Request.Context())
	if err != nil {
		log.Printf("videos: sweep failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes, "checked": len(outcomes)})
}

// handleList returns the caller's records, optionally filtered by ?status=.
func (m *Module) handleList(c *gin.Context) {
	userID, _ := authorization.CurrentUser(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	status := strings.TrimSpace(c.Query("status"))
	switch status {
	case "", StatusPending, StatusProcessing, StatusSuccess, StatusFail:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status filter"})
		return
	}

	records, err := m.store.ListByUser(c.Request.Context(), userID, status)
	if err != nil {
		log.Printf("videos: list records for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list videos"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"videos": records})
}

// handleGet returns one of the caller's records.
func (m *Module) handleGet(c *gin.Context) {
	userID, _ := authorization.CurrentUser(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	videoID, ok := parseRecordParam(c)
	if !ok {
		return
	}

	video, err := m.store.FindOwned(c.Request.Context(), videoID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		log.Printf("videos: load record %d: %v", videoID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load video"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"video": video})
}

// handleDelete removes one of the caller's records. Deleting a processing
// record abandons its task; the sweep simply stops seeing it.
func (m *Module) handleDelete(c *gin.Context) {
	userID, _ := authorization.CurrentUser(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	videoID, ok := parseRecordParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	video, err := m.store.FindOwned(ctx, videoID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		log.Printf("videos: load record %d: %v", videoID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete video"})
		return
	}

	if err := m.store.DeleteOwned(ctx, videoID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		log.Printf("videos: delete record %d: %v", videoID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete video"})
		return
	}

	// Best-effort cleanup of uploaded reference images.
	if m.inputs != nil {
		for _, ref := range video.ImagePaths() {
			if err := m.inputs.Remove(ctx, ref); err != nil {
				log.Printf("videos: remove image %s: %v", ref, err)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"deleted": videoID})
}

func parseRecordParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return 0, false
	}
	return id, true
}
