package planner

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"ai-trip-planner/internal/budget"
	"ai-trip-planner/internal/trip"
)

//go:embed itinerary_prompt.md
var itineraryPrompt string

var itineraryTemplate = template.Must(template.New("itinerary").Parse(itineraryPrompt))

var styleGuidance = map[trip.TravelStyle]string{
	trip.StyleBudget:   "hostels or guesthouses, street food and local eateries, public transport, free attractions",
	trip.StyleBalanced: "3-4 star hotels, a mix of local and popular restaurants, taxis and public transport",
	trip.StyleLuxury:   "5-star hotels and resorts, fine dining, private transfers, premium experiences",
}

type allocationLine struct {
	Category budget.Category
	Percent  int
	Amount   int64
}

type itineraryPromptData struct {
	Destination   string
	FromCity      string
	StartDate     string
	EndDate       string
	Days          int
	Adults        int
	Children      int
	Rooms         int
	Style         trip.TravelStyle
	StyleGuidance string
	Total         int64
	Currency      string
	Allocations   []allocationLine
}

func buildItineraryPrompt(params trip.Parameters, plan budget.Plan, currency string) (string, error) {
	style := params.StyleOrDefault()
	data := itineraryPromptData{
		Destination:   params.Destination,
		FromCity:      params.FromCity,
		StartDate:     params.StartDate.Format("2006-01-02"),
		EndDate:       params.EndDate().Format("2006-01-02"),
		Days:          params.Days(),
		Adults:        params.Adults(),
		Children:      params.Children(),
		Rooms:         len(params.Rooms),
		Style:         style,
		StyleGuidance: styleGuidance[style],
		Total:         plan.Total,
		Currency:      currency,
	}
	for _, c := range budget.Categories {
		data.Allocations = append(data.Allocations, allocationLine{
			Category: c,
			Percent:  plan.Breakdown.Get(c),
			Amount:   plan.Amount(c),
		})
	}

	var buf bytes.Buffer
	if err := itineraryTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render itinerary prompt: %w", err)
	}
	return buf.String(), nil
}
