// Package wizard holds the trip wizard state. State is a plain value and every
// change goes through Reduce, which returns a new State and leaves its input
// untouched.
package wizard

import (
	"errors"
	"fmt"

	"ai-trip-planner/internal/budget"
	"ai-trip-planner/internal/trip"
)

// Step is a screen of the wizard.
type Step string

const (
	StepDestination Step = "destination"
	StepDates       Step = "dates"
	StepDuration    Step = "duration"
	StepTravelers   Step = "travelers"
	StepBudget      Step = "budget"
	StepPackage     Step = "package"
	StepGeneration  Step = "generation"
	StepPayment     Step = "payment"
	StepDone        Step = "done"
)

// Steps lists the wizard screens in order.
var Steps = []Step{
	StepDestination, StepDates, StepDuration, StepTravelers, StepBudget,
	StepPackage, StepGeneration, StepPayment, StepDone,
}

func (s Step) index() int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return 0
}

// Errors returned by Reduce. The state is unchanged whenever one is returned.
var (
	ErrBudgetIncomplete = errors.New("budget allocation must total 100%")
	ErrBudgetRejected   = errors.New("budget change rejected")
	ErrAboveCeiling     = fmt.Errorf("a single category is limited to %d%%", budget.SoftCategoryCeiling)
	ErrUnknownDuration  = errors.New("unknown trip duration")
	ErrNotReady         = errors.New("trip is not ready for this step")
	ErrAlreadyPaid      = errors.New("itinerary is already paid")
)

// State is everything the wizard has collected so far.
type State struct {
	Step         Step            `json:"step"`
	Trip         trip.Parameters `json:"trip"`
	Budget       budget.Plan     `json:"budget"`
	DefaultTotal int64           `json:"default_total"`
	ItineraryID  string          `json:"itinerary_id,omitempty"`
	PaymentRef   string          `json:"payment_ref,omitempty"`
	Paid         bool            `json:"paid,omitempty"`
}

// New returns a fresh wizard on the first step with the default budget.
func New(defaultTotal int64) State {
	if defaultTotal <= 0 {
		defaultTotal = budget.DefaultTotal
	}
	return State{
		Step:         StepDestination,
		Budget:       budget.DefaultPlan(defaultTotal),
		DefaultTotal: defaultTotal,
	}
}

// Restore sanitizes a state loaded from storage. A corrupt budget falls back
// to the defaults and an unknown step restarts the wizard position.
func Restore(s State) State {
	out := s.clone()
	if out.DefaultTotal <= 0 {
		out.DefaultTotal = budget.DefaultTotal
	}
	out.Budget = budget.Load(s.Budget, budget.WithDefaultTotal(out.DefaultTotal)).Plan()
	if out.Step == "" || Steps[out.Step.index()] != out.Step {
		out.Step = StepDestination
	}
	return out
}

// CanGenerate reports whether the trip and budget are complete enough to
// request an itinerary.
func (s State) CanGenerate() error {
	if err := s.Trip.CheckRequired(); err != nil {
		return err
	}
	if !trip.KnownDuration(s.Trip.DurationLabel) {
		return ErrUnknownDuration
	}
	if !s.Budget.IsComplete() {
		return ErrBudgetIncomplete
	}
	return nil
}

func (s State) clone() State {
	out := s
	if s.Trip.Rooms != nil {
		out.Trip.Rooms = append([]trip.Room(nil), s.Trip.Rooms...)
	}
	return out
}

// advanceFrom moves to the step after from if the wizard is currently on it.
func (s *State) advanceFrom(from Step) {
	if s.Step == from {
		s.Step = Steps[from.index()+1]
	}
}
