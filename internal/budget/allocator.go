package budget

// Allocator holds a Plan and guards its invariants. It never returns errors:
// edits either apply or are rejected with the plan left untouched.
type Allocator struct {
	plan         Plan
	defaultTotal int64
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithDefaultTotal sets the total restored by ResetToDefaults.
func WithDefaultTotal(total int64) Option {
	return func(a *Allocator) {
		if total > 0 {
			a.defaultTotal = total
		}
	}
}

// NewAllocator creates an allocator holding the canonical default plan.
func NewAllocator(opts ...Option) *Allocator {
	a := &Allocator{defaultTotal: DefaultTotal}
	for _, opt := range opts {
		opt(a)
	}
	a.ResetToDefaults()
	return a
}

// Load creates an allocator from a previously stored plan. A stored
// percentage outside [0, 100] means the record is corrupt: the whole
// breakdown is discarded and the defaults are applied instead.
func Load(stored Plan, opts ...Option) *Allocator {
	a := NewAllocator(opts...)
	for _, v := range stored.Breakdown {
		if v < 0 || v > FullAllocation {
			return a
		}
	}
	a.plan.Breakdown = stored.Breakdown
	if stored.Total >= 0 {
		a.plan.Total = stored.Total
	}
	return a
}

// SetTotal replaces the budget total. Negative amounts and amounts above
// MaxTotal are rejected.
func (a *Allocator) SetTotal(amount int64) bool {
	if amount < 0 || amount > MaxTotal {
		return false
	}
	a.plan.Total = amount
	return true
}

// SetCategoryPercentage assigns value to category c unless the resulting
// sum across all categories would exceed 100.
func (a *Allocator) SetCategoryPercentage(c Category, value int) bool {
	i, ok := c.index()
	if !ok || value < 0 {
		return false
	}
	next := a.plan.Breakdown
	next[i] = value
	if next.Sum() > FullAllocation {
		return false
	}
	a.plan.Breakdown = next
	return true
}

// ResetToDefaults restores the canonical split and total.
func (a *Allocator) ResetToDefaults() {
	a.plan = DefaultPlan(a.defaultTotal)
}

// Amounts returns the absolute amount per category.
func (a *Allocator) Amounts() map[Category]int64 {
	return a.plan.Amounts()
}

// IsComplete reports whether the split sums to exactly 100.
func (a *Allocator) IsComplete() bool {
	return a.plan.IsComplete()
}

// Plan returns a copy of the current plan.
func (a *Allocator) Plan() Plan {
	return a.plan
}
