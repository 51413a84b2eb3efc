package wizard

import (
	"fmt"
	"strings"
	"time"

	"ai-trip-planner/internal/budget"
	"ai-trip-planner/internal/trip"
)

// Action is a single user intent applied by Reduce.
type Action interface {
	apply(s *State, now time.Time) error
}

// Reduce applies a to s and returns the resulting state. s is never
// modified; on error the returned state equals s.
func Reduce(s State, a Action, now time.Time) (State, error) {
	next := s.clone()
	if err := a.apply(&next, now); err != nil {
		return s, err
	}
	return next, nil
}

type SetDestination struct{ Name string }

func (a SetDestination) apply(s *State, _ time.Time) error {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return trip.ErrMissingDestination
	}
	s.Trip.Destination = name
	s.advanceFrom(StepDestination)
	return nil
}

type SetStartDate struct{ Date time.Time }

func (a SetStartDate) apply(s *State, now time.Time) error {
	if err := trip.CheckStartDate(a.Date, now); err != nil {
		return err
	}
	s.Trip.StartDate = a.Date
	s.advanceFrom(StepDates)
	return nil
}

type SetDuration struct{ Label string }

func (a SetDuration) apply(s *State, _ time.Time) error {
	label := strings.TrimSpace(a.Label)
	if !trip.KnownDuration(label) {
		return fmt.Errorf("%w: %q", ErrUnknownDuration, a.Label)
	}
	s.Trip.DurationLabel = label
	s.advanceFrom(StepDuration)
	return nil
}

type SetRooms struct{ Rooms []trip.Room }

func (a SetRooms) apply(s *State, _ time.Time) error {
	if err := trip.CheckRooms(a.Rooms); err != nil {
		return err
	}
	s.Trip.Rooms = append([]trip.Room(nil), a.Rooms...)
	s.advanceFrom(StepTravelers)
	return nil
}

type SetFromCity struct{ City string }

func (a SetFromCity) apply(s *State, _ time.Time) error {
	s.Trip.FromCity = strings.TrimSpace(a.City)
	return nil
}

type SetBudgetTotal struct{ Amount int64 }

func (a SetBudgetTotal) apply(s *State, _ time.Time) error {
	alloc := s.allocator()
	if !alloc.SetTotal(a.Amount) {
		return fmt.Errorf("%w: total %d", ErrBudgetRejected, a.Amount)
	}
	s.Budget = alloc.Plan()
	return nil
}

type SetCategoryPercentage struct {
	Category budget.Category
	Percent  int
}

func (a SetCategoryPercentage) apply(s *State, _ time.Time) error {
	if a.Percent > budget.SoftCategoryCeiling {
		return ErrAboveCeiling
	}
	alloc := s.allocator()
	if !alloc.SetCategoryPercentage(a.Category, a.Percent) {
		return fmt.Errorf("%w: %s=%d%% would leave %d%% allocated", ErrBudgetRejected,
			a.Category, a.Percent, s.Budget.Breakdown.Sum()-s.Budget.Breakdown.Get(a.Category)+a.Percent)
	}
	s.Budget = alloc.Plan()
	return nil
}

type ResetBudget struct{}

func (ResetBudget) apply(s *State, _ time.Time) error {
	alloc := s.allocator()
	alloc.ResetToDefaults()
	s.Budget = alloc.Plan()
	return nil
}

// ConfirmBudget leaves the budget step once the split is complete.
type ConfirmBudget struct{}

func (ConfirmBudget) apply(s *State, _ time.Time) error {
	if !s.Budget.IsComplete() {
		return ErrBudgetIncomplete
	}
	if s.Budget.Total <= 0 {
		return fmt.Errorf("%w: total must be positive", ErrBudgetRejected)
	}
	s.advanceFrom(StepBudget)
	return nil
}

// SelectPackage picks the travel style tier.
type SelectPackage struct{ Style trip.TravelStyle }

func (a SelectPackage) apply(s *State, _ time.Time) error {
	if !a.Style.Valid() {
		return fmt.Errorf("%w: %q", trip.ErrUnknownStyle, a.Style)
	}
	s.Trip.Style = a.Style
	s.advanceFrom(StepPackage)
	return nil
}

// ItineraryGenerated records a successful generation.
type ItineraryGenerated struct{ ID string }

func (a ItineraryGenerated) apply(s *State, _ time.Time) error {
	if a.ID == "" {
		return ErrNotReady
	}
	s.ItineraryID = a.ID
	s.PaymentRef = ""
	s.Paid = false
	if s.Step.index() <= StepGeneration.index() {
		s.Step = StepPayment
	}
	return nil
}

type PaymentStarted struct{ Ref string }

func (a PaymentStarted) apply(s *State, _ time.Time) error {
	if s.ItineraryID == "" {
		return ErrNotReady
	}
	if s.Paid {
		return ErrAlreadyPaid
	}
	s.PaymentRef = a.Ref
	return nil
}

type PaymentCompleted struct{}

func (PaymentCompleted) apply(s *State, _ time.Time) error {
	if s.ItineraryID == "" {
		return ErrNotReady
	}
	s.Paid = true
	s.Step = StepDone
	return nil
}

// Back returns to the previous step. It is a no-op on the first step.
type Back struct{}

func (Back) apply(s *State, _ time.Time) error {
	if i := s.Step.index(); i > 0 {
		s.Step = Steps[i-1]
	}
	return nil
}

func (s *State) allocator() *budget.Allocator {
	return budget.Load(s.Budget, budget.WithDefaultTotal(s.DefaultTotal))
}
