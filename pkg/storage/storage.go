package storage

import (
	"time"

	"github.com/pkg/errors"

	"github.com/avizh98/gofor/pkg/models"
)

var (
	// ErrNotFound is returned when no task exists for the given id.
	ErrNotFound = errors.New("task not found")
	// ErrConflict is returned when a compare-and-swap finds the task in a
	// status other than the expected one.
	ErrConflict = errors.New("task status changed concurrently")
)

// StatusMutation is the set of field changes applied together with a
// status transition. The history entry is mandatory: every transition
// appends exactly one.
type StatusMutation struct {
	HelperID           *string
	ClearDeadline      bool
	CancellationReason string
	CancelledBy        string
	CompletedAt        *time.Time
	CompletionProof    *models.CompletionProof
	History            models.StatusChange
}

// Store defines the task storage operations. CompareAndSwapStatus is the
// single mutation path for status transitions and must be atomic with
// respect to concurrent callers on the same task id.
type Store interface {
	Close() error

	CreateTask(t models.Task) error
	GetTask(id string) (models.Task, error)
	ListTasksByRequester(requesterID string, status models.TaskStatus) ([]models.Task, error)
	ListTasksByHelper(helperID string, status models.TaskStatus) ([]models.Task, error)

	// CompareAndSwapStatus atomically moves the task from expected to next
	// and applies the mutation, or fails with ErrConflict if the current
	// status no longer matches expected. It returns the updated task.
	CompareAndSwapStatus(id string, expected, next models.TaskStatus, mut StatusMutation) (models.Task, error)

	// AppendRejection records an explicit helper decline. It does not
	// change the task status.
	AppendRejection(id string, r models.Rejection) error

	IncrementViewCount(id string) error

	// UpdateBudget re-prices a task; it only applies while the task is
	// still pending and fails with ErrConflict otherwise.
	UpdateBudget(id string, budget, serviceFee, totalAmount float64) error

	// TasksWithinRadius returns pending tasks whose pickup point lies
	// within radiusMeters of p, ordered by urgency (asap first) and then
	// by creation time, newest first. Tasks the excluded helper has
	// declined are filtered out.
	TasksWithinRadius(p models.GeoPoint, radiusMeters float64, excludeHelperID string) ([]models.Task, error)

	// ExpiredUrgentTasks returns pending asap tasks whose acceptance
	// deadline has passed as of now.
	ExpiredUrgentTasks(now time.Time) ([]models.Task, error)
}
