// Package export renders a normalized itinerary as a document.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ai-trip-planner/internal/budget"
	"ai-trip-planner/internal/itinerary"

	"github.com/dustin/go-humanize"
)

// Format is a supported document type.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

// ParseFormat resolves a format name or file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "markdown", "md", "":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Extension is the file extension for f, without the dot.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// Write renders it in the given format.
func Write(w io.Writer, f Format, it *itinerary.Itinerary) error {
	if it == nil {
		return fmt.Errorf("no itinerary to export")
	}
	switch f {
	case FormatMarkdown:
		return Markdown(w, it)
	case FormatCSV:
		return CSV(w, it)
	case FormatJSON:
		return JSON(w, it)
	}
	return fmt.Errorf("unsupported export format %q", f)
}

// JSON writes the itinerary as indented JSON.
func JSON(w io.Writer, it *itinerary.Itinerary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(it)
}

// CSV writes one row per priced item. The last row holds the trip total.
func CSV(w io.Writer, it *itinerary.Itinerary) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"day", "date", "city", "kind", "name", "detail", "cost", "currency"})

	money := func(v int64) string { return strconv.FormatInt(v, 10) }
	for _, d := range it.Days {
		day := strconv.Itoa(d.Day)
		for _, a := range d.Activities {
			_ = cw.Write([]string{day, d.Date, d.City, "activity", a.Title, a.Duration, money(a.Cost), it.Currency})
		}
		for _, m := range d.Meals {
			_ = cw.Write([]string{day, d.Date, d.City, "meal", m.Restaurant, string(m.Type), money(m.Cost), it.Currency})
		}
		_ = cw.Write([]string{day, d.Date, d.City, "accommodation", d.Accommodation.Name, d.Accommodation.Type, money(d.Accommodation.Cost), it.Currency})
		_ = cw.Write([]string{day, d.Date, d.City, "transport", d.Transport.Mode, d.Transport.Details, money(d.Transport.Cost), it.Currency})
	}
	_ = cw.Write([]string{"", "", "", "total", it.Title, "", money(it.TotalCost), it.Currency})

	cw.Flush()
	return cw.Error()
}

// Markdown writes a human readable document.
func Markdown(w io.Writer, it *itinerary.Itinerary) error {
	ew := &errWriter{w: w}
	amount := func(v int64) string { return humanize.Comma(v) + " " + it.Currency }

	ew.printf("# %s\n\n", it.Title)
	if it.Overview != "" {
		ew.printf("%s\n\n", it.Overview)
	}
	ew.printf("**Destination:** %s  \n", it.Destination)
	ew.printf("**Days:** %d  \n", len(it.Days))
	ew.printf("**Estimated total:** %s\n\n", amount(it.TotalCost))

	if len(it.BudgetBreakdown) > 0 {
		ew.printf("## Budget\n\n| Category | Allocated |\n|---|---:|\n")
		for _, c := range budget.Categories {
			if v, ok := it.BudgetBreakdown[c]; ok {
				ew.printf("| %s | %s |\n", c, amount(v))
			}
		}
		ew.printf("\n")
	}

	for _, d := range it.Days {
		ew.printf("## Day %d", d.Day)
		if d.Date != "" {
			ew.printf(" (%s)", d.Date)
		}
		if d.Theme != "" {
			ew.printf(": %s", d.Theme)
		}
		ew.printf("\n\n")
		if d.City != "" {
			ew.printf("_%s_\n\n", d.City)
		}
		for _, a := range d.Activities {
			ew.printf("- %s", a.Title)
			if a.Duration != "" {
				ew.printf(" (%s)", a.Duration)
			}
			ew.printf(": %s\n", amount(a.Cost))
		}
		for _, m := range d.Meals {
			ew.printf("- %s at %s: %s\n", mealLabels[m.Type], m.Restaurant, amount(m.Cost))
		}
		ew.printf("- Stay: %s: %s\n", d.Accommodation.Name, amount(d.Accommodation.Cost))
		ew.printf("- Transport: %s", d.Transport.Mode)
		if d.Transport.Details != "" {
			ew.printf(" (%s)", d.Transport.Details)
		}
		ew.printf(": %s\n\n", amount(d.Transport.Cost))
		ew.printf("**Day total:** %s\n\n", amount(d.EstimatedCost))
	}
	return ew.err
}

var mealLabels = map[itinerary.MealType]string{
	itinerary.Breakfast: "Breakfast",
	itinerary.Lunch:     "Lunch",
	itinerary.Dinner:    "Dinner",
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
