package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusAccepted   TaskStatus = "accepted"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
)

type TaskCategory string

const (
	CategoryShopping       TaskCategory = "shopping"
	CategoryPharmacy       TaskCategory = "pharmacy"
	CategoryPickupDelivery TaskCategory = "pickup-delivery"
	CategoryOther          TaskCategory = "other"
)

type TaskUrgency string

const (
	UrgencyASAP      TaskUrgency = "asap"
	UrgencyScheduled TaskUrgency = "scheduled"
)

// AcceptanceWindow is how long an ASAP task stays open for helpers before
// the deadline watcher cancels it.
const AcceptanceWindow = 90 * time.Second

// SystemActorID attributes status changes made by background jobs rather
// than a requester or helper.
const SystemActorID = "system"

// GeoPoint is a WGS84 coordinate pair, longitude first to match the wire
// layout of the persisted documents.
type GeoPoint struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Location is an address with its resolved coordinate.
type Location struct {
	Address  string   `json:"address"`
	Landmark string   `json:"landmark,omitempty"`
	Point    GeoPoint `json:"point"`
}

// StatusChange is a single entry of the append-only status history.
type StatusChange struct {
	Status    TaskStatus `json:"status"`
	ChangedAt time.Time  `json:"changed_at"`
	ChangedBy string     `json:"changed_by"`
	Reason    string     `json:"reason,omitempty"`
}

// Rejection records a helper who explicitly declined the task. Declined
// helpers are not offered the same task again.
type Rejection struct {
	HelperID   string    `json:"helper_id"`
	RejectedAt time.Time `json:"rejected_at"`
	Reason     string    `json:"reason,omitempty"`
}

// CompletionProof is the payload a helper submits when completing a task.
type CompletionProof struct {
	Photos      []string  `json:"photos,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// StatusHistory and RejectionList are stored as JSONB columns so a single
// UPDATE can append to them.
type StatusHistory []StatusChange

func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		h = StatusHistory{}
	}
	return json.Marshal(h)
}

func (h *StatusHistory) Scan(src interface{}) error {
	return scanJSON(src, h)
}

type RejectionList []Rejection

func (l RejectionList) Value() (driver.Value, error) {
	if l == nil {
		l = RejectionList{}
	}
	return json.Marshal(l)
}

func (l *RejectionList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("cannot scan %T into JSON field", src)
	}
}

// Task is a single requester-to-helper errand. It is owned by the task
// store and, once created, mutated only through the store's
// compare-and-swap primitive.
type Task struct {
	ID          string       `json:"id"`
	RequesterID string       `json:"requester_id"`
	HelperID    *string      `json:"helper_id,omitempty"`
	Category    TaskCategory `json:"category"`
	Title       string       `json:"title"`
	Description string       `json:"description"`

	Pickup   Location `json:"pickup_location"`
	Delivery Location `json:"delivery_location"`

	Urgency           TaskUrgency `json:"urgency"`
	ScheduledTime     *time.Time  `json:"scheduled_time,omitempty"`
	EstimatedDuration int         `json:"estimated_duration"` // minutes

	Budget      float64 `json:"budget"`
	ServiceFee  float64 `json:"service_fee"`
	TotalAmount float64 `json:"total_amount"`

	Status        TaskStatus    `json:"status"`
	StatusHistory StatusHistory `json:"status_history"`

	AcceptanceDeadline *time.Time    `json:"acceptance_deadline,omitempty"`
	RejectedHelpers    RejectionList `json:"rejected_helpers"`

	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	CompletionProof    *CompletionProof `json:"completion_proof,omitempty"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
	CancelledBy        string           `json:"cancelled_by,omitempty"`

	DistanceKm float64 `json:"distance"` // pickup to delivery, one decimal
	ViewCount  int     `json:"view_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RejectedBy reports whether the helper has declined this task before.
func (t *Task) RejectedBy(helperID string) bool {
	for _, r := range t.RejectedHelpers {
		if r.HelperID == helperID {
			return true
		}
	}
	return false
}

// AssignedTo reports whether the helper currently holds the task.
func (t *Task) AssignedTo(helperID string) bool {
	return t.HelperID != nil && *t.HelperID == helperID
}

// Terminal reports whether the task has reached a final status.
func (t *Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusCancelled
}

// TimeRemaining returns the seconds left before the acceptance deadline,
// floored at zero. It returns -1 for tasks without a deadline.
func (t *Task) TimeRemaining(now time.Time) int {
	if t.Urgency != UrgencyASAP || t.Status != StatusPending || t.AcceptanceDeadline == nil {
		return -1
	}
	remaining := int(t.AcceptanceDeadline.Sub(now) / time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MarshalJSON adds the computed time_remaining field so every serialized
// task carries the countdown while its acceptance window is open.
func (t Task) MarshalJSON() ([]byte, error) {
	type alias Task
	out := struct {
		alias
		TimeRemaining *int `json:"time_remaining,omitempty"`
	}{alias: alias(t)}
	if s := t.TimeRemaining(time.Now()); s >= 0 {
		out.TimeRemaining = &s
	}
	return json.Marshal(out)
}

func ValidCategory(c TaskCategory) bool {
	switch c {
	case CategoryShopping, CategoryPharmacy, CategoryPickupDelivery, CategoryOther:
		return true
	}
	return false
}

func ValidUrgency(u TaskUrgency) bool {
	return u == UrgencyASAP || u == UrgencyScheduled
}

func ValidStatus(s TaskStatus) bool {
	switch s {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
