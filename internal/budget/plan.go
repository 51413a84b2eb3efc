package budget

import (
	"encoding/json"
	"fmt"
)

// Category is one of the fixed spending buckets of a trip budget.
type Category string

const (
	Accommodation  Category = "accommodation"
	Transportation Category = "transportation"
	Food           Category = "food"
	Activities     Category = "activities"
	Shopping       Category = "shopping"
)

// Categories lists every budget category in display order.
var Categories = [...]Category{Accommodation, Transportation, Food, Activities, Shopping}

const (
	// DefaultTotal is the canonical budget total in whole currency units.
	DefaultTotal int64 = 50000
	// SoftCategoryCeiling is the per-category maximum offered by input controls.
	// The allocator itself only enforces the 100% sum.
	SoftCategoryCeiling = 60
	// FullAllocation is the sum a breakdown must reach to be complete.
	FullAllocation = 100
	// MaxTotal is the largest budget total the allocator accepts.
	MaxTotal int64 = 1_000_000_000_000_000
)

var defaultPercentages = Breakdown{40, 25, 20, 10, 5}

// ParseCategory resolves a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown budget category %q", s)
}

func (c Category) index() (int, bool) {
	for i, known := range Categories {
		if known == c {
			return i, true
		}
	}
	return 0, false
}

// Breakdown holds a percentage per category, indexed in Categories order.
type Breakdown [len(Categories)]int

// DefaultBreakdown returns the canonical 40/25/20/10/5 split.
func DefaultBreakdown() Breakdown {
	return defaultPercentages
}

// Get returns the percentage assigned to c, or 0 for an unknown category.
func (b Breakdown) Get(c Category) int {
	i, ok := c.index()
	if !ok {
		return 0
	}
	return b[i]
}

// Sum adds up all percentages.
func (b Breakdown) Sum() int {
	sum := 0
	for _, v := range b {
		sum += v
	}
	return sum
}

// MarshalJSON encodes the breakdown as {"accommodation": 40, ...}.
func (b Breakdown) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, len(Categories))
	for i, c := range Categories {
		m[string(c)] = b[i]
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes the map form. Unknown keys are ignored and missing
// categories are left at zero; range checks happen in Load.
func (b *Breakdown) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out Breakdown
	for i, c := range Categories {
		out[i] = m[string(c)]
	}
	*b = out
	return nil
}

// Plan is a budget total with its percentage split.
type Plan struct {
	Total     int64     `json:"total"`
	Breakdown Breakdown `json:"breakdown"`
}

// DefaultPlan returns the canonical plan for the given total.
func DefaultPlan(total int64) Plan {
	return Plan{Total: total, Breakdown: DefaultBreakdown()}
}

// IsComplete reports whether the percentages add up to exactly 100.
func (p Plan) IsComplete() bool {
	return p.Breakdown.Sum() == FullAllocation
}

// Amount returns round(total * percentage / 100) for a category.
func (p Plan) Amount(c Category) int64 {
	return roundShare(p.Total, p.Breakdown.Get(c))
}

// Amounts returns the absolute amount for every category.
func (p Plan) Amounts() map[Category]int64 {
	out := make(map[Category]int64, len(Categories))
	for _, c := range Categories {
		out[c] = p.Amount(c)
	}
	return out
}

// Unallocated returns the percentage points not yet assigned to any category.
func (p Plan) Unallocated() int {
	return FullAllocation - p.Breakdown.Sum()
}

func roundShare(total int64, pct int) int64 {
	if total <= 0 || pct <= 0 {
		return 0
	}
	// half-up rounding, split so total*pct never overflows
	return total/100*int64(pct) + (total%100*int64(pct)+50)/100
}
