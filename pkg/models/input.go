package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	MinBudget = 5
	MaxBudget = 1000

	maxTitleLen       = 100
	maxDescriptionLen = 500
)

// ValidationError carries every violated field of a request, not just the
// first one, keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// CreateTaskInput is the typed payload for posting a new task.
type CreateTaskInput struct {
	RequesterID       string       `json:"requester_id"`
	Category          TaskCategory `json:"category"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	Pickup            Location     `json:"pickup_location"`
	Delivery          Location     `json:"delivery_location"`
	Urgency           TaskUrgency  `json:"urgency"`
	ScheduledTime     *time.Time   `json:"scheduled_time,omitempty"`
	EstimatedDuration int          `json:"estimated_duration,omitempty"`
	Budget            float64      `json:"budget"`
}

// Validate checks the whole input and reports every violation at once.
// Budget bounds are enforced here and in the pricing engine; out-of-range
// values are rejected, never clamped.
func (in CreateTaskInput) Validate() error {
	var ve ValidationError
	if in.RequesterID == "" {
		ve.add("requester_id", "required")
	}
	if !ValidCategory(in.Category) {
		ve.add("category", "must be one of shopping, pharmacy, pickup-delivery, other")
	}
	if in.Title == "" {
		ve.add("title", "required")
	} else if len(in.Title) > maxTitleLen {
		ve.add("title", fmt.Sprintf("must be at most %d characters", maxTitleLen))
	}
	if in.Description == "" {
		ve.add("description", "required")
	} else if len(in.Description) > maxDescriptionLen {
		ve.add("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLen))
	}
	validateLocation(&ve, "pickup_location", in.Pickup)
	validateLocation(&ve, "delivery_location", in.Delivery)
	if !ValidUrgency(in.Urgency) {
		ve.add("urgency", "must be asap or scheduled")
	} else if in.Urgency == UrgencyScheduled && in.ScheduledTime == nil {
		ve.add("scheduled_time", "required for scheduled tasks")
	}
	if in.Budget < MinBudget || in.Budget > MaxBudget {
		ve.add("budget", fmt.Sprintf("must be between %d and %d", MinBudget, MaxBudget))
	}
	if in.EstimatedDuration < 0 {
		ve.add("estimated_duration", "must not be negative")
	}
	return ve.orNil()
}

func validateLocation(ve *ValidationError, field string, loc Location) {
	if loc.Address == "" {
		ve.add(field+".address", "required")
	}
	if loc.Point.Longitude < -180 || loc.Point.Longitude > 180 {
		ve.add(field+".longitude", "must be between -180 and 180")
	}
	if loc.Point.Latitude < -90 || loc.Point.Latitude > 90 {
		ve.add(field+".latitude", "must be between -90 and 90")
	}
}
