package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/avizh98/gofor/pkg/geo"
	"github.com/avizh98/gofor/pkg/models"
)

// mockStore implements Store with in-memory storage. The mutex makes
// CompareAndSwapStatus atomic, which is the property the acceptance
// resolver tests rely on.
type mockStore struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

// NewMockStore returns an in-memory Store for tests and examples.
func NewMockStore() Store {
	return &mockStore{tasks: make(map[string]*models.Task)}
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) CreateTask(t models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[t.ID]; exists {
		return ErrConflict
	}
	cp := t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *mockStore) GetTask(id string) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	return *t, nil
}

func (m *mockStore) ListTasksByRequester(requesterID string, status models.TaskStatus) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.tasks {
		if t.RequesterID == requesterID && (status == "" || t.Status == status) {
			out = append(out, *t)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *mockStore) ListTasksByHelper(helperID string, status models.TaskStatus) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.tasks {
		if t.AssignedTo(helperID) && (status == "" || t.Status == status) {
			out = append(out, *t)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *mockStore) CompareAndSwapStatus(id string, expected, next models.TaskStatus, mut StatusMutation) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	if t.Status != expected {
		return models.Task{}, ErrConflict
	}
	t.Status = next
	t.StatusHistory = append(t.StatusHistory, mut.History)
	if mut.HelperID != nil {
		t.HelperID = mut.HelperID
	}
	if mut.ClearDeadline {
		t.AcceptanceDeadline = nil
	}
	if mut.CancellationReason != "" {
		t.CancellationReason = mut.CancellationReason
	}
	if mut.CancelledBy != "" {
		t.CancelledBy = mut.CancelledBy
	}
	if mut.CompletedAt != nil {
		t.CompletedAt = mut.CompletedAt
	}
	if mut.CompletionProof != nil {
		t.CompletionProof = mut.CompletionProof
	}
	t.UpdatedAt = mut.History.ChangedAt
	return *t, nil
}

func (m *mockStore) AppendRejection(id string, r models.Rejection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.RejectedHelpers = append(t.RejectedHelpers, r)
	t.UpdatedAt = r.RejectedAt
	return nil
}

func (m *mockStore) IncrementViewCount(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.ViewCount++
	return nil
}

func (m *mockStore) UpdateBudget(id string, budget, serviceFee, totalAmount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != models.StatusPending {
		return ErrConflict
	}
	t.Budget = budget
	t.ServiceFee = serviceFee
	t.TotalAmount = totalAmount
	t.UpdatedAt = time.Now()
	return nil
}

func (m *mockStore) TasksWithinRadius(p models.GeoPoint, radiusMeters float64, excludeHelperID string) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.tasks {
		if t.Status != models.StatusPending {
			continue
		}
		if excludeHelperID != "" && t.RejectedBy(excludeHelperID) {
			continue
		}
		if geo.DistanceMeters(p, t.Pickup.Point) > radiusMeters {
			continue
		}
		out = append(out, *t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Urgency != out[j].Urgency {
			return out[i].Urgency == models.UrgencyASAP
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *mockStore) ExpiredUrgentTasks(now time.Time) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.tasks {
		if t.Status != models.StatusPending || t.Urgency != models.UrgencyASAP {
			continue
		}
		if t.AcceptanceDeadline != nil && t.AcceptanceDeadline.Before(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func sortNewestFirst(tasks []models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}
