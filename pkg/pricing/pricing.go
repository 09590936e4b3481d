// Package pricing derives the service fee and total for a task budget.
// The numbers are part of the persisted contract: downstream payment
// consumers read them back verbatim, so they are computed in exactly one
// place and re-derived on every budget change.
package pricing

import (
	"fmt"
	"math"

	"github.com/avizh98/gofor/pkg/models"
)

// FeeRate is the platform's cut of the budget.
const FeeRate = 0.15

// Quote computes the service fee and total amount for a budget. Budgets
// outside [MinBudget, MaxBudget] are rejected, never clamped.
func Quote(budget float64) (serviceFee, totalAmount float64, err error) {
	if budget < models.MinBudget || budget > models.MaxBudget {
		return 0, 0, &models.ValidationError{Fields: map[string]string{
			"budget": fmt.Sprintf("must be between %d and %d", models.MinBudget, models.MaxBudget),
		}}
	}
	serviceFee = math.Round(budget * FeeRate)
	return serviceFee, budget + serviceFee, nil
}
