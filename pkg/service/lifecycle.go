package service

import (
	"github.com/pkg/errors"

	"github.com/avizh98/gofor/pkg/models"
	"github.com/avizh98/gofor/pkg/storage"
)

// legalTransitions is the task lifecycle: pending → accepted →
// in-progress → completed, with cancellation possible from pending or
// accepted only. Terminal statuses have no exits.
var legalTransitions = map[models.TaskStatus][]models.TaskStatus{
	models.StatusPending:    {models.StatusAccepted, models.StatusCancelled},
	models.StatusAccepted:   {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted},
	models.StatusCompleted:  {},
	models.StatusCancelled:  {},
}

// CanTransition reports whether the lifecycle allows moving from one
// status to another.
func CanTransition(from, to models.TaskStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AdvanceStatus moves a task forward through its lifecycle. Only the
// assigned helper may advance accepted → in-progress → completed.
// Cancellation goes through CancelTask so the cancelling party is
// recorded. The proof payload is stored on completion and ignored
// otherwise.
func (s *TaskService) AdvanceStatus(taskID, actorID string, target models.TaskStatus, reason string, proof *models.CompletionProof) (models.Task, error) {
	if !models.ValidStatus(target) {
		return models.Task{}, &models.ValidationError{Fields: map[string]string{"status": "unknown status"}}
	}
	if target == models.StatusCancelled {
		return s.CancelTask(taskID, actorID, reason)
	}
	if target == models.StatusAccepted {
		// Acceptance has its own preconditions and race arbitration.
		return s.AcceptTask(taskID, actorID)
	}

	task, err := s.store.GetTask(taskID)
	if err != nil {
		return models.Task{}, err
	}
	if !CanTransition(task.Status, target) {
		return models.Task{}, &IllegalTransitionError{From: task.Status, To: target}
	}
	if !task.AssignedTo(actorID) {
		return models.Task{}, ErrNotAuthorized
	}

	now := s.now()
	mut := storage.StatusMutation{
		History: models.StatusChange{
			Status:    target,
			ChangedAt: now,
			ChangedBy: actorID,
			Reason:    reason,
		},
	}
	if target == models.StatusCompleted {
		mut.CompletedAt = &now
		if proof != nil {
			p := *proof
			p.SubmittedAt = now
			mut.CompletionProof = &p
		} else {
			mut.CompletionProof = &models.CompletionProof{SubmittedAt: now}
		}
	}

	updated, err := s.store.CompareAndSwapStatus(taskID, task.Status, target, mut)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return models.Task{}, ErrTaskUnavailable
		}
		return models.Task{}, err
	}
	s.logger.Infof("Task %s moved to %s by %s", taskID, target, actorID)
	if target == models.StatusCompleted {
		go s.notifier.TaskCompleted(updated)
	}
	return updated, nil
}

// CancelTask cancels a pending or accepted task. Either party may cancel;
// the acting identity and reason are recorded so a requester cancelling
// an accepted task is distinguishable from a helper backing out.
func (s *TaskService) CancelTask(taskID, actorID, reason string) (models.Task, error) {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return models.Task{}, err
	}
	if !CanTransition(task.Status, models.StatusCancelled) {
		return models.Task{}, &IllegalTransitionError{From: task.Status, To: models.StatusCancelled}
	}
	if actorID != models.SystemActorID && task.RequesterID != actorID && !task.AssignedTo(actorID) {
		return models.Task{}, ErrNotAuthorized
	}

	cancelled, err := s.store.CompareAndSwapStatus(taskID, task.Status, models.StatusCancelled, storage.StatusMutation{
		CancellationReason: reason,
		CancelledBy:        actorID,
		History: models.StatusChange{
			Status:    models.StatusCancelled,
			ChangedAt: s.now(),
			ChangedBy: actorID,
			Reason:    reason,
		},
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return models.Task{}, ErrTaskUnavailable
		}
		return models.Task{}, err
	}
	s.logger.Infof("Task %s cancelled by %s: %s", taskID, actorID, reason)
	go s.notifier.TaskCancelled(cancelled)
	return cancelled, nil
}
