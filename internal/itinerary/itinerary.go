package itinerary

import (
	"fmt"

	"ai-trip-planner/internal/budget"
)

// MealType is the slot a meal occupies in a day.
type MealType string

const (
	Breakfast MealType = "breakfast"
	Lunch     MealType = "lunch"
	Dinner    MealType = "dinner"
)

// Valid reports whether t is a known meal slot.
func (t MealType) Valid() bool {
	return t == Breakfast || t == Lunch || t == Dinner
}

// Activity is a single sightseeing or leisure item.
type Activity struct {
	Title    string `json:"title"`
	Duration string `json:"duration"`
	Cost     int64  `json:"cost"`
}

// Meal is a restaurant visit.
type Meal struct {
	Restaurant string   `json:"restaurant"`
	Type       MealType `json:"type"`
	Cost       int64    `json:"cost"`
}

// Accommodation is where the travellers sleep that night.
type Accommodation struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Cost int64  `json:"cost"`
}

// Transport is the day's main way of getting around.
type Transport struct {
	Mode    string `json:"mode"`
	Details string `json:"details,omitempty"`
	Cost    int64  `json:"cost"`
}

// DayPlan is one day of the itinerary.
type DayPlan struct {
	Day           int           `json:"day"`
	Date          string        `json:"date"`
	City          string        `json:"city"`
	Theme         string        `json:"theme"`
	Activities    []Activity    `json:"activities"`
	Meals         []Meal        `json:"meals"`
	Accommodation Accommodation `json:"accommodation"`
	Transport     Transport     `json:"transport"`
	EstimatedCost int64         `json:"estimated_cost"`
}

// ComputedCost sums every priced item of the day.
func (d DayPlan) ComputedCost() int64 {
	total := d.Accommodation.Cost + d.Transport.Cost
	for _, a := range d.Activities {
		total += a.Cost
	}
	for _, m := range d.Meals {
		total += m.Cost
	}
	return total
}

// Itinerary is a normalized, day-by-day trip plan.
type Itinerary struct {
	ID              string                    `json:"id,omitempty"`
	Destination     string                    `json:"destination"`
	Title           string                    `json:"title"`
	Overview        string                    `json:"overview"`
	TotalCost       int64                     `json:"total_cost"`
	Currency        string                    `json:"currency"`
	BudgetBreakdown map[budget.Category]int64 `json:"budget_breakdown"`
	Days            []DayPlan                 `json:"days"`
}

// CheckInvariants verifies the cost and numbering rules of a normalized itinerary.
func (it *Itinerary) CheckInvariants() error {
	var sum int64
	for i, d := range it.Days {
		if d.Day != i+1 {
			return fmt.Errorf("day %d has index %d", i+1, d.Day)
		}
		if got := d.ComputedCost(); got != d.EstimatedCost {
			return fmt.Errorf("day %d estimated cost %d does not match items %d", d.Day, d.EstimatedCost, got)
		}
		sum += d.EstimatedCost
	}
	if sum != it.TotalCost {
		return fmt.Errorf("total cost %d does not match days %d", it.TotalCost, sum)
	}
	return nil
}
