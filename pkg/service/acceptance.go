package service

import (
	"github.com/pkg/errors"

	"github.com/avizh98/gofor/pkg/models"
	"github.com/avizh98/gofor/pkg/storage"
)

// AcceptTask arbitrates an accept attempt. Across any number of
// simultaneous attempts on the same task, at most one transitions it to
// accepted; all others observe ErrTaskUnavailable. Preconditions are
// checked against a read snapshot, but the compare-and-swap is what
// decides the race.
func (s *TaskService) AcceptTask(taskID, helperID string) (models.Task, error) {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return models.Task{}, err
	}
	if task.Status != models.StatusPending {
		return models.Task{}, ErrTaskUnavailable
	}
	now := s.now()
	if task.Urgency == models.UrgencyASAP && task.AcceptanceDeadline != nil && !now.Before(*task.AcceptanceDeadline) {
		return models.Task{}, ErrDeadlineExpired
	}
	if task.RejectedBy(helperID) {
		return models.Task{}, ErrHelperIneligible
	}
	helper, err := s.directory.GetHelper(helperID)
	if err != nil {
		if errors.Is(err, ErrHelperUnknown) {
			return models.Task{}, ErrHelperIneligible
		}
		return models.Task{}, errors.Wrap(err, "look up helper")
	}
	if !helper.Eligible() {
		return models.Task{}, ErrHelperIneligible
	}

	accepted, err := s.store.CompareAndSwapStatus(taskID, models.StatusPending, models.StatusAccepted, storage.StatusMutation{
		HelperID:      &helperID,
		ClearDeadline: true,
		History: models.StatusChange{
			Status:    models.StatusAccepted,
			ChangedAt: now,
			ChangedBy: helperID,
		},
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return models.Task{}, ErrTaskUnavailable
		}
		return models.Task{}, err
	}

	s.logger.Infof("Task %s accepted by helper %s", taskID, helperID)
	// Side effects stay outside the atomic transition.
	go s.notifier.TaskAccepted(accepted)
	return accepted, nil
}

// RejectTask records an explicit decline. The task stays pending and
// visible to every other helper; a repeated decline by the same helper is
// an idempotent no-op.
func (s *TaskService) RejectTask(taskID, helperID, reason string) error {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.RejectedBy(helperID) {
		return nil
	}
	if err := s.store.AppendRejection(taskID, models.Rejection{
		HelperID:   helperID,
		RejectedAt: s.now(),
		Reason:     reason,
	}); err != nil {
		return errors.Wrap(err, "record rejection")
	}
	s.logger.Infof("Helper %s declined task %s", helperID, taskID)
	return nil
}

// ExpireDeadlines cancels pending asap tasks whose acceptance deadline
// has passed, and returns how many it cancelled. It is safe to run from
// multiple instances at once: a concurrent accept or a duplicate scan
// simply loses the compare-and-swap and is skipped.
func (s *TaskService) ExpireDeadlines() (int, error) {
	now := s.now()
	expired, err := s.store.ExpiredUrgentTasks(now)
	if err != nil {
		return 0, errors.Wrap(err, "scan expired tasks")
	}
	count := 0
	for _, task := range expired {
		cancelled, err := s.store.CompareAndSwapStatus(task.ID, models.StatusPending, models.StatusCancelled, storage.StatusMutation{
			CancellationReason: "acceptance timeout",
			CancelledBy:        models.SystemActorID,
			History: models.StatusChange{
				Status:    models.StatusCancelled,
				ChangedAt: now,
				ChangedBy: models.SystemActorID,
				Reason:    "acceptance timeout",
			},
		})
		if err != nil {
			if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
				// Lost the race to an accept or another scan.
				continue
			}
			return count, errors.Wrapf(err, "expire task %s", task.ID)
		}
		count++
		s.logger.Infof("Task %s cancelled: acceptance timeout", task.ID)
		go s.notifier.TaskCancelled(cancelled)
	}
	return count, nil
}
