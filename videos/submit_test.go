package videos

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"cinemagen_back/authorization"
	"cinemagen_back/cache"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&authorization.User{}, &Video{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, credits int) *authorization.User {
	t.Helper()

	user := &authorization.User{
		Username:     "tester",
		PasswordHash: "x",
		DisplayName:  "Tester",
		Credits:      credits,
		Tier:         authorization.TierFree,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedVideo(t *testing.T, db *gorm.DB, userID uint64, model string) *Video {
	t.Helper()

	video := &Video{
		UserID:      userID,
		Model:       model,
		Prompt:      "A paper boat drifting down a rainy street gutter",
		AspectRatio: AspectLandscape,
		NFrames:     6 * FramesPerSecond,
		Status:      StatusPending,
	}
	if err := db.Create(video).Error; err != nil {
		t.Fatalf("seed video: %v", err)
	}
	return video
}

type fakeTaskCreator struct {
	taskID string
	err    error
	calls  int
	model  string
	input  any
}

func (f *fakeTaskCreator) CreateTask(_ context.Context, model string, input any) (string, error) {
	f.calls++
	f.model = model
	f.input = input
	if f.err != nil {
		return "", f.err
	}
	return f.taskID, nil
}

type fakeLimiter struct {
	allowed bool
	resetAt time.Time
}

func (f *fakeLimiter) Allow(context.Context, string, string, int, time.Duration) (cache.Decision, error) {
	return cache.Decision{Allowed: f.allowed, ResetAt: f.resetAt}, nil
}

func newTestSubmitter(t *testing.T, db *gorm.DB, tasks TaskCreator, limiter RateLimiter) *Submitter {
	t.Helper()

	submitter, err := NewSubmitter(NewVideoStore(db), authorization.NewCreditStore(db), tasks, limiter, nil)
	if err != nil {
		t.Fatalf("NewSubmitter: %v", err)
	}
	return submitter
}

func reloadVideo(t *testing.T, db *gorm.DB, id uint64) *Video {
	t.Helper()

	var video Video
	if err := db.First(&video, id).Error; err != nil {
		t.Fatalf("reload video: %v", err)
	}
	return &video
}

func balanceOf(t *testing.T, db *gorm.DB, userID uint64) int {
	t.Helper()

	balance, err := authorization.NewCreditStore(db).Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return balance
}

func TestSubmitHappyPath(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 2)
	video := seedVideo(t, db, user.ID, ModelTextToVideo)
	tasks := &fakeTaskCreator{taskID: "task-abc"}
	submitter := newTestSubmitter(t, db, tasks, nil)

	result, err := submitter.Submit(context.Background(), user.ID, false, video.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if result.Status != StatusProcessing {
		t.Fatalf("status = %q, want processing", result.Status)
	}
	if result.TaskID == nil || *result.TaskID != "task-abc" {
		t.Fatalf("task id = %v, want task-abc", result.TaskID)
	}
	if got := balanceOf(t, db, user.ID); got != 1 {
		t.Fatalf("balance = %d, want 1", got)
	}
	if tasks.model != ModelTextToVideo {
		t.Fatalf("external call used model %q", tasks.model)
	}
	payload, ok := tasks.input.(standardInput)
	if !ok {
		t.Fatalf("external payload is %T", tasks.input)
	}
	if payload.Seconds != "6" {
		t.Fatalf("payload seconds = %q, want 6", payload.Seconds)
	}
}

func TestSubmitInsufficientCredits(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 1)
	video := seedVideo(t, db, user.ID, ModelProStoryboard)
	tasks := &fakeTaskCreator{taskID: "task-abc"}
	submitter := newTestSubmitter(t, db, tasks, nil)

	_, err := submitter.Submit(context.Background(), user.ID, false, video.ID)
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	if tasks.calls != 0 {
		t.Fatal("external service must not be called without credits")
	}
	if got := balanceOf(t, db, user.ID); got != 1 {
		t.Fatalf("balance = %d, want untouched 1", got)
	}

	after := reloadVideo(t, db, video.ID)
	if after.Status != StatusFail {
		t.Fatalf("status = %q, want fail", after.Status)
	}
	if after.FailReason == nil || *after.FailReason != "Insufficient credits (requires 2)" {
		t.Fatalf("fail reason = %v", after.FailReason)
	}
}

func TestSubmitUpstreamFailureKeepsDebit(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 3)
	video := seedVideo(t, db, user.ID, ModelTextToVideo)
	tasks := &fakeTaskCreator{err: errors.New("upstream 500")}
	submitter := newTestSubmitter(t, db, tasks, nil)

	_, err := submitter.Submit(context.Background(), user.ID, false, video.ID)
	if !errors.Is(err, ErrTaskCreation) {
		t.Fatalf("expected ErrTaskCreation, got %v", err)
	}

	// Credits are charged before the external call and not refunded.
	if got := balanceOf(t, db, user.ID); got != 2 {
		t.Fatalf("balance = %d, want 2", got)
	}

	after := reloadVideo(t, db, video.ID)
	if after.Status != StatusFail {
		t.Fatalf("status = %q, want fail", after.Status)
	}
	if after.TaskID != nil {
		t.Fatalf("task id should stay empty, got %v", after.TaskID)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 2)
	video := seedVideo(t, db, user.ID, ModelTextToVideo)
	tasks := &fakeTaskCreator{taskID: "task-abc"}
	resetAt := time.Now().Add(30 * time.Minute)
	submitter := newTestSubmitter(t, db, tasks, &fakeLimiter{allowed: false, resetAt: resetAt})

	_, err := submitter.Submit(context.Background(), user.ID, false, video.ID)
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if !rateErr.RetryAt.Equal(resetAt) {
		t.Fatalf("retry at = %v, want %v", rateErr.RetryAt, resetAt)
	}

	// A rejected submission leaves both the record and the balance alone.
	if got := balanceOf(t, db, user.ID); got != 2 {
		t.Fatalf("balance = %d, want 2", got)
	}
	if after := reloadVideo(t, db, video.ID); after.Status != StatusPending {
		t.Fatalf("status = %q, want pending", after.Status)
	}
}

func TestSubmitCreditRaceFailsRecord(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 5)
	video := seedVideo(t, db, user.ID, ModelTextToVideo)
	tasks := &fakeTaskCreator{taskID: "task-abc"}
	submitter := newTestSubmitter(t, db, tasks, nil)

	// Simulate a concurrent submission landing between the balance read and
	// the conditioned debit: right after the users row is read, spend a
	// credit directly so the conditioned write matches zero rows.
	raced := false
	err := db.Callback().Query().After("gorm:query").Register("concurrent_debit", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "users" {
			return
		}
		raced = true
		tx.Session(&gorm.Session{NewDB: true, SkipHooks: true}).
			Exec("UPDATE users SET credits = credits - 1 WHERE id = ?", user.ID)
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	_, err = submitter.Submit(context.Background(), user.ID, false, video.ID)
	if !errors.Is(err, ErrCreditConflict) {
		t.Fatalf("expected ErrCreditConflict, got %v", err)
	}
	if !raced {
		t.Fatal("concurrent debit never fired")
	}

	if tasks.calls != 0 {
		t.Fatal("external service must not be called after a lost debit race")
	}
	// Only the concurrent debit landed; the loser did not double-charge.
	if got := balanceOf(t, db, user.ID); got != 4 {
		t.Fatalf("balance = %d, want 4", got)
	}

	after := reloadVideo(t, db, video.ID)
	if after.Status != StatusFail {
		t.Fatalf("status = %q, want fail", after.Status)
	}
	if after.FailReason == nil || *after.FailReason != "Credit balance changed during submission" {
		t.Fatalf("fail reason = %v", after.FailReason)
	}
}

func TestSubmitAdminSkipsDebit(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 0)
	video := seedVideo(t, db, user.ID, ModelProStoryboard)
	tasks := &fakeTaskCreator{taskID: "task-admin"}
	submitter := newTestSubmitter(t, db, tasks, nil)

	result, err := submitter.Submit(context.Background(), user.ID, true, video.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Status != StatusProcessing {
		t.Fatalf("status = %q, want processing", result.Status)
	}
	if got := balanceOf(t, db, user.ID); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
}

func TestSubmitRejectsNonPendingRecord(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 5)
	video := seedVideo(t, db, user.ID, ModelTextToVideo)
	tasks := &fakeTaskCreator{taskID: "task-abc"}
	submitter := newTestSubmitter(t, db, tasks, nil)
	ctx := context.Background()

	if _, err := submitter.Submit(ctx, user.ID, false, video.ID); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := submitter.Submit(ctx, user.ID, false, video.ID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
	if tasks.calls != 1 {
		t.Fatalf("external service called %d times, want 1", tasks.calls)
	}
}

func TestSubmitUnknownRecord(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 5)
	submitter := newTestSubmitter(t, db, &fakeTaskCreator{taskID: "x"}, nil)

	if _, err := submitter.Submit(context.Background(), user.ID, false, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
