package service

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/avizh98/gofor/pkg/models"
)

// Logger defines the logging interface for TaskService.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// HelperDirectory is the read-only view onto the identity service. The
// matching engine and acceptance resolver consult it but never mutate it.
type HelperDirectory interface {
	GetHelper(id string) (models.HelperSnapshot, error)
	ListAvailableHelpers() ([]models.HelperSnapshot, error)
}

// ErrHelperUnknown is returned by a directory when no helper exists for
// the given id.
var ErrHelperUnknown = errors.New("helper not found")

// Notifier receives task lifecycle events. Dispatch is fire-and-forget:
// delivery failures never roll back a transition.
type Notifier interface {
	TaskAccepted(task models.Task)
	TaskCancelled(task models.Task)
	TaskCompleted(task models.Task)
}

// StaticDirectory is an in-memory HelperDirectory used by tests, examples
// and local runs until a real identity service is attached.
type StaticDirectory struct {
	mu      sync.RWMutex
	helpers map[string]models.HelperSnapshot
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{helpers: make(map[string]models.HelperSnapshot)}
}

func (d *StaticDirectory) Put(h models.HelperSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.helpers[h.ID] = h
}

func (d *StaticDirectory) GetHelper(id string) (models.HelperSnapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.helpers[id]
	if !ok {
		return models.HelperSnapshot{}, ErrHelperUnknown
	}
	return h, nil
}

func (d *StaticDirectory) ListAvailableHelpers() ([]models.HelperSnapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.HelperSnapshot, 0, len(d.helpers))
	for _, h := range d.helpers {
		out = append(out, h)
	}
	return out, nil
}

// LogNotifier logs lifecycle events instead of dispatching push
// notifications. It stands in until a real notification service is wired.
type LogNotifier struct {
	Logger Logger
}

func (n LogNotifier) TaskAccepted(task models.Task) {
	n.Logger.Infof("notify: task %s accepted by helper %s (requester %s)", task.ID, *task.HelperID, task.RequesterID)
}

func (n LogNotifier) TaskCancelled(task models.Task) {
	n.Logger.Infof("notify: task %s cancelled by %s: %s", task.ID, task.CancelledBy, task.CancellationReason)
}

func (n LogNotifier) TaskCompleted(task models.Task) {
	n.Logger.Infof("notify: task %s completed", task.ID)
}
