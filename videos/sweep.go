package videos

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cinemagen_back/kie"
)

// Sweep outcome labels reported per reconciled record.
const (
	OutcomeSuccess         = "success"
	OutcomeFail            = "fail"
	OutcomeStillProcessing = "still_processing"
	OutcomeError           = "error"
)

// SweepOutcome describes what the reconciliation pass did with one record.
type SweepOutcome struct {
	VideoID uint64 `json:"video_id"`
	TaskID  string `json:"task_id"`
	Outcome string `json:"outcome"`
	State   string `json:"state,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TaskQuerier fetches the current state of an external generation task.
type TaskQuerier interface {
	QueryTask(ctx context.Context, taskID string) (*kie.TaskStatus, error)
}

// Reconciler drives the out-of-band status sweep: it walks every processing
// record that carries a task id, queries the external service, and finalises
// records whose tasks reached a terminal state. Failures are isolated per
// record so one bad task never stalls the rest of the pass.
type Reconciler struct {
	store *VideoStore
	tasks TaskQuerier
}

// NewReconciler wires the sweep against its store and task source.
func NewReconciler(store *VideoStore, tasks TaskQuerier) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("videos: video store is required")
	}
	if tasks == nil {
		return nil, errors.New("videos: task querier is required")
	}
	return &Reconciler{store: store, tasks: tasks}, nil
}

// Sweep reconciles all in-flight records and reports one outcome per record.
func (r *Reconciler) Sweep(ctx context.Context) ([]SweepOutcome, error) {
	records, err := r.store.ListProcessing(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]SweepOutcome, 0, len(records))
	for i := range records {
		if err := ctx.Err(); err != nil {
			return outcomes, fmt.Errorf("videos: sweep interrupted: %w", err)
		}
		outcomes = append(outcomes, r.reconcile(ctx, &records[i]))
	}
	return outcomes, nil
}

func (r *Reconciler) reconcile(ctx context.Context, video *Video) SweepOutcome {
	outcome := SweepOutcome{VideoID: video.ID}
	if video.TaskID != nil {
		outcome.TaskID = *video.TaskID
	}

	status, err := r.tasks.QueryTask(ctx, outcome.TaskID)
	if err != nil {
		log.Printf("videos: query task %s for record %d: %v", outcome.TaskID, video.ID, err)
		outcome.Outcome = OutcomeError
		outcome.Error = err.Error()
		return outcome
	}

	switch status.State {
	case kie.StateSuccess:
		var resultURL *string
		if urls := status.ResultURLs(); len(urls) > 0 {
			resultURL = &urls[0]
		}
		if err := r.store.MarkSuccess(ctx, video.ID, resultURL); err != nil {
			outcome.Outcome = OutcomeError
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Outcome = OutcomeSuccess
	case kie.StateFail:
		reason := status.FailureReason()
		if err := r.store.MarkFailed(ctx, video.ID, reason); err != nil {
			outcome.Outcome = OutcomeError
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Outcome = OutcomeFail
		outcome.Reason = reason
	default:
		outcome.Outcome = OutcomeStillProcessing
		outcome.State = status.State
	}
	return outcome
}
