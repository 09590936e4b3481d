package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/avizh98/gofor/pkg/geo"
	"github.com/avizh98/gofor/pkg/models"
	"github.com/avizh98/gofor/pkg/pricing"
	"github.com/avizh98/gofor/pkg/storage"
)

// TaskService brokers errand tasks between requesters and helpers. All
// status transitions go through the store's compare-and-swap primitive,
// which is what makes concurrent accept attempts safe.
type TaskService struct {
	store     storage.Store
	directory HelperDirectory
	notifier  Notifier
	logger    Logger
	now       func() time.Time
}

func NewTaskService(store storage.Store, directory HelperDirectory, notifier Notifier, logger Logger) *TaskService {
	return &TaskService{
		store:     store,
		directory: directory,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateTask validates and prices the input, then persists a pending task.
// ASAP tasks get an acceptance deadline of creation time plus the
// acceptance window.
func (s *TaskService) CreateTask(in models.CreateTaskInput) (models.Task, error) {
	if err := in.Validate(); err != nil {
		return models.Task{}, err
	}
	fee, total, err := pricing.Quote(in.Budget)
	if err != nil {
		return models.Task{}, err
	}

	now := s.now()
	duration := in.EstimatedDuration
	if duration == 0 {
		duration = 30
	}
	task := models.Task{
		ID:                uuid.NewString(),
		RequesterID:       in.RequesterID,
		Category:          in.Category,
		Title:             in.Title,
		Description:       in.Description,
		Pickup:            in.Pickup,
		Delivery:          in.Delivery,
		Urgency:           in.Urgency,
		ScheduledTime:     in.ScheduledTime,
		EstimatedDuration: duration,
		Budget:            in.Budget,
		ServiceFee:        fee,
		TotalAmount:       total,
		Status:            models.StatusPending,
		StatusHistory: models.StatusHistory{{
			Status:    models.StatusPending,
			ChangedAt: now,
			ChangedBy: in.RequesterID,
		}},
		DistanceKm: geo.RoundKm(geo.DistanceKm(in.Pickup.Point, in.Delivery.Point)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.Urgency == models.UrgencyASAP {
		deadline := now.Add(models.AcceptanceWindow)
		task.AcceptanceDeadline = &deadline
	}

	if err := s.store.CreateTask(task); err != nil {
		return models.Task{}, errors.Wrap(err, "create task")
	}
	s.logger.Infof("Created task %s (%s, %s) for requester %s", task.ID, task.Category, task.Urgency, task.RequesterID)
	return task, nil
}

// GetTask fetches a task and counts the view. The counter is analytics
// only, so a failed increment is logged and otherwise ignored.
func (s *TaskService) GetTask(id string) (models.Task, error) {
	task, err := s.store.GetTask(id)
	if err != nil {
		return models.Task{}, err
	}
	if err := s.store.IncrementViewCount(id); err != nil {
		s.logger.Errorf("Failed to count view for task %s: %v", id, err)
	} else {
		task.ViewCount++
	}
	return task, nil
}

// ListTasksByRequester returns the requester's tasks, newest first,
// optionally filtered by status.
func (s *TaskService) ListTasksByRequester(requesterID string, status models.TaskStatus) ([]models.Task, error) {
	if status != "" && !models.ValidStatus(status) {
		return nil, &models.ValidationError{Fields: map[string]string{"status": "unknown status"}}
	}
	return s.store.ListTasksByRequester(requesterID, status)
}

// ListTasksByHelper returns the tasks assigned to the helper, newest
// first, optionally filtered by status.
func (s *TaskService) ListTasksByHelper(helperID string, status models.TaskStatus) ([]models.Task, error) {
	if status != "" && !models.ValidStatus(status) {
		return nil, &models.ValidationError{Fields: map[string]string{"status": "unknown status"}}
	}
	return s.store.ListTasksByHelper(helperID, status)
}

// UpdateBudget re-prices a pending task. Budget is immutable once the
// task leaves pending; the store enforces that with the same conflict
// semantics as a status swap.
func (s *TaskService) UpdateBudget(taskID, actorID string, budget float64) (models.Task, error) {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return models.Task{}, err
	}
	if task.RequesterID != actorID {
		return models.Task{}, ErrNotAuthorized
	}
	fee, total, err := pricing.Quote(budget)
	if err != nil {
		return models.Task{}, err
	}
	if err := s.store.UpdateBudget(taskID, budget, fee, total); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return models.Task{}, ErrTaskUnavailable
		}
		return models.Task{}, err
	}
	return s.store.GetTask(taskID)
}
