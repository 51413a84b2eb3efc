package itinerary

import (
	"fmt"
	"strings"
	"time"

	"ai-trip-planner/internal/budget"
)

const dateLayout = "2006-01-02"

// NormalizeInput carries what normalization needs from the request.
type NormalizeInput struct {
	Destination  string
	ExpectedDays int
	StartDate    time.Time
	Currency     string
	Plan         budget.Plan
}

// Normalize turns a provider response into an Itinerary. Day and trip totals
// are recomputed from line items and the budget breakdown comes from the
// user's plan. A day count different from ExpectedDays is an error; days are
// never padded or dropped.
func Normalize(raw RawItinerary, in NormalizeInput) (*Itinerary, error) {
	if len(raw.Days) != in.ExpectedDays {
		return nil, fmt.Errorf("%w: expected %d days, got %d", ErrMalformed, in.ExpectedDays, len(raw.Days))
	}

	days := make([]DayPlan, 0, len(raw.Days))
	var total int64
	for i, rd := range raw.Days {
		d, err := normalizeDay(i, rd, in.StartDate)
		if err != nil {
			return nil, err
		}
		total += d.EstimatedCost
		days = append(days, d)
	}

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = fmt.Sprintf("%d days in %s", len(days), in.Destination)
	}

	return &Itinerary{
		Destination:     in.Destination,
		Title:           title,
		Overview:        strings.TrimSpace(raw.Overview),
		TotalCost:       total,
		Currency:        in.Currency,
		BudgetBreakdown: in.Plan.Amounts(),
		Days:            days,
	}, nil
}

func normalizeDay(i int, rd RawDay, start time.Time) (DayPlan, error) {
	dayNum := i + 1
	d := DayPlan{
		Day:   dayNum,
		Date:  strings.TrimSpace(rd.Date),
		City:  strings.TrimSpace(rd.City),
		Theme: strings.TrimSpace(rd.Theme),
	}
	if !start.IsZero() {
		d.Date = start.AddDate(0, 0, i).Format(dateLayout)
	}

	d.Activities = make([]Activity, 0, len(rd.Activities))
	for _, ra := range rd.Activities {
		if ra.Cost < 0 {
			return DayPlan{}, fmt.Errorf("%w: day %d activity %q has negative cost", ErrMalformed, dayNum, ra.Title)
		}
		d.Activities = append(d.Activities, Activity{
			Title:    strings.TrimSpace(ra.Title),
			Duration: strings.TrimSpace(ra.Duration),
			Cost:     int64(ra.Cost),
		})
	}

	d.Meals = make([]Meal, 0, len(rd.Meals))
	for _, rm := range rd.Meals {
		mt := MealType(strings.ToLower(strings.TrimSpace(rm.Type)))
		if !mt.Valid() {
			return DayPlan{}, fmt.Errorf("%w: day %d meal type %q", ErrMalformed, dayNum, rm.Type)
		}
		if rm.Cost < 0 {
			return DayPlan{}, fmt.Errorf("%w: day %d meal at %q has negative cost", ErrMalformed, dayNum, rm.Restaurant)
		}
		d.Meals = append(d.Meals, Meal{
			Restaurant: strings.TrimSpace(rm.Restaurant),
			Type:       mt,
			Cost:       int64(rm.Cost),
		})
	}

	if rd.Accommodation.Cost < 0 || rd.Transport.Cost < 0 {
		return DayPlan{}, fmt.Errorf("%w: day %d has negative lodging or transport cost", ErrMalformed, dayNum)
	}
	d.Accommodation = Accommodation{
		Name: strings.TrimSpace(rd.Accommodation.Name),
		Type: strings.TrimSpace(rd.Accommodation.Type),
		Cost: int64(rd.Accommodation.Cost),
	}
	d.Transport = Transport{
		Mode:    strings.TrimSpace(rd.Transport.Mode),
		Details: strings.TrimSpace(rd.Transport.Details),
		Cost:    int64(rd.Transport.Cost),
	}

	d.EstimatedCost = d.ComputedCost()
	return d, nil
}
