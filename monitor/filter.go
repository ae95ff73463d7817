package monitor

import (
	"github.com/shopspring/decimal"

	"clore-monitor-bot/clore"
)

// Filters are a user's listing thresholds.
type Filters struct {
	MinGPU   int
	MaxPrice decimal.Decimal
}

// DefaultFilters matches everything except effectively-priceless
// listings: at least one GPU, price up to $9999.
func DefaultFilters() Filters {
	return Filters{
		MinGPU:   1,
		MaxPrice: decimal.NewFromInt(9999),
	}
}

// Passes reports whether a listing satisfies the thresholds. Rented
// listings never pass.
func (f Filters) Passes(l clore.Listing) bool {
	if l.Rented {
		return false
	}
	return l.GPUCount >= f.MinGPU && l.Price.LessThanOrEqual(f.MaxPrice)
}
