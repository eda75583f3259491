package videos

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"cinemagen_back/authorization"
	"cinemagen_back/cache"
)

// Rate limit applied to task submission, shared across all generation models.
const (
	rateLimitAction   = "generate-video"
	rateLimitAttempts = 20
	rateLimitWindow   = time.Hour
)

var (
	// ErrInsufficientCredits indicates the account balance cannot cover the
	// model cost.
	ErrInsufficientCredits = errors.New("videos: insufficient credits")
	// ErrCreditConflict indicates the balance changed between the read and the
	// debit, usually a concurrent submission from the same account.
	ErrCreditConflict = errors.New("videos: credit balance changed, please retry")
	// ErrTaskCreation indicates the external service rejected the task after
	// credits were already debited.
	ErrTaskCreation = errors.New("videos: failed to create generation task")
)

// RateLimitError reports a rejected submission together with the moment the
// window resets.
type RateLimitError struct {
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	return "videos: rate limit exceeded"
}

// TaskCreator starts a generation job on the external service and returns its
// task id.
type TaskCreator interface {
	CreateTask(ctx context.Context, model string, input any) (string, error)
}

// RateLimiter decides whether an identifier may perform an action within a
// fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, identifier, action string, maxAttempts int, window time.Duration) (cache.Decision, error)
}

// Submitter runs the task submission procedure: ownership check, rate limit,
// credit debit, payload build, external task creation, and the transition to
// processing. Credits are debited before the external call and are not
// refunded when the call fails; the record's failure reason is the account's
// receipt.
type Submitter struct {
	store   *VideoStore
	credits *authorization.CreditStore
	tasks   TaskCreator
	limiter RateLimiter
	signer  SignedURLProvider
}

// NewSubmitter wires the submission procedure. limiter and signer may be nil:
// a nil limiter admits every request and a nil signer fails only records that
// actually carry image references.
func NewSubmitter(store *VideoStore, credits *authorization.CreditStore, tasks TaskCreator, limiter RateLimiter, signer SignedURLProvider) (*Submitter, error) {
	if store == nil {
		return nil, errors.New("videos: video store is required")
	}
	if credits == nil {
		return nil, errors.New("videos: credit store is required")
	}
	if tasks == nil {
		return nil, errors.New("videos: task creator is required")
	}
	return &Submitter{store: store, credits: credits, tasks: tasks, limiter: limiter, signer: signer}, nil
}

// Submit moves a pending record owned by userID into processing. Admin
// accounts skip the credit check and debit but still pay the rate limit.
func (s *Submitter) Submit(ctx context.Context, userID uint64, isAdmin bool, videoID uint64) (*Video, error) {
	video, err := s.store.FindOwned(ctx, videoID, userID)
	if err != nil {
		return nil, err
	}
	if video.Status != StatusPending {
		return nil, ErrNotPending
	}

	if s.limiter != nil {
		decision, err := s.limiter.Allow(ctx, strconv.FormatUint(userID, 10), rateLimitAction, rateLimitAttempts, rateLimitWindow)
		if err != nil {
			log.Printf("videos: rate limit check failed for user %d: %v", userID, err)
		} else if !decision.Allowed {
			return nil, &RateLimitError{RetryAt: decision.ResetAt}
		}
	}

	cost := ModelCost(video.Model)
	if !isAdmin {
		if err := s.debit(ctx, userID, videoID, cost); err != nil {
			return nil, err
		}
	}

	input, err := buildTaskInput(ctx, video, s.signer)
	if err != nil {
		s.failRecord(ctx, videoID, "Failed to prepare generation request")
		return nil, err
	}

	taskID, err := s.tasks.CreateTask(ctx, video.Model, input)
	if err != nil {
		log.Printf("videos: task creation failed for record %d: %v", videoID, err)
		s.failRecord(ctx, videoID, "Failed to create generation task")
		return nil, fmt.Errorf("%w: %v", ErrTaskCreation, err)
	}

	if err := s.store.MarkProcessing(ctx, videoID, taskID); err != nil {
		return nil, err
	}
	return s.store.FindOwned(ctx, videoID, userID)
}

// debit charges the model cost with an optimistic compare-and-write. A lost
// race fails the record rather than double-charging the account.
func (s *Submitter) debit(ctx context.Context, userID, videoID uint64, cost int) error {
	balance, err := s.credits.Balance(ctx, userID)
	if err != nil {
		return fmt.Errorf("videos: read credit balance: %w", err)
	}
	if balance < cost {
		s.failRecord(ctx, videoID, fmt.Sprintf("Insufficient credits (requires %d)", cost))
		return ErrInsufficientCredits
	}

	err = s.credits.DebitIfUnchanged(ctx, userID, cost, balance)
	switch {
	case errors.Is(err, authorization.ErrInsufficientCredits):
		s.failRecord(ctx, videoID, fmt.Sprintf("Insufficient credits (requires %d)", cost))
		return ErrInsufficientCredits
	case errors.Is(err, authorization.ErrBalanceChanged):
		s.failRecord(ctx, videoID, "Credit balance changed during submission")
		return ErrCreditConflict
	case err != nil:
		return fmt.Errorf("videos: debit credits: %w", err)
	}
	return nil
}

func (s *Submitter) failRecord(ctx context.Context, videoID uint64, reason string) {
	if err := s.store.MarkFailed(ctx, videoID, reason); err != nil {
		log.Printf("videos: mark record %d failed: %v", videoID, err)
	}
}
