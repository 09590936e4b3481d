package service

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/avizh98/gofor/pkg/models"
)

// Conflict-class errors: the task moved under the caller's feet. Clients
// should re-fetch instead of retrying the same call.
var (
	// ErrTaskUnavailable means another helper won the race or the task
	// left pending before the attempt landed.
	ErrTaskUnavailable = errors.New("task no longer available")
	// ErrDeadlineExpired means the acceptance window of an asap task has
	// closed.
	ErrDeadlineExpired = errors.New("acceptance deadline has passed")
)

// ErrHelperIneligible means the helper cannot take this task: wrong role,
// unverified, unavailable, inactive, or previously declined it.
var ErrHelperIneligible = errors.New("helper is not eligible for this task")

// ErrNotAuthorized means the actor lacks the role or ownership required
// for the requested transition.
var ErrNotAuthorized = errors.New("actor is not authorized for this action")

// IllegalTransitionError is returned when a requested status change is not
// part of the task lifecycle.
type IllegalTransitionError struct {
	From models.TaskStatus
	To   models.TaskStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition from '%s' to '%s'", e.From, e.To)
}
