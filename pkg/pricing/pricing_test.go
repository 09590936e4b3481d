package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avizh98/gofor/pkg/models"
	"github.com/avizh98/gofor/pkg/pricing"
)

func TestQuote(t *testing.T) {
	t.Run("StandardBudgets", func(t *testing.T) {
		cases := []struct {
			budget float64
			fee    float64
			total  float64
		}{
			{5, 1, 6},       // round(0.75) = 1
			{10, 2, 12},     // round(1.5) = 2
			{20, 3, 23},     // round(3.0)
			{100, 15, 115},
			{333, 50, 383},  // round(49.95)
			{1000, 150, 1150},
		}
		for _, c := range cases {
			fee, total, err := pricing.Quote(c.budget)
			assert.NoError(t, err)
			assert.Equal(t, c.fee, fee, "fee for budget %v", c.budget)
			assert.Equal(t, c.total, total, "total for budget %v", c.budget)
		}
	})

	t.Run("OutOfRangeRejectedNotClamped", func(t *testing.T) {
		for _, budget := range []float64{0, 4.99, -10, 1000.01, 5000} {
			_, _, err := pricing.Quote(budget)
			assert.Error(t, err, "budget %v", budget)
			var ve *models.ValidationError
			assert.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, "budget")
		}
	})

	t.Run("BoundsInclusive", func(t *testing.T) {
		_, _, err := pricing.Quote(5)
		assert.NoError(t, err)
		_, _, err = pricing.Quote(1000)
		assert.NoError(t, err)
	})
}
