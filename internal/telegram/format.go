package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ai-trip-planner/internal/budget"
	"ai-trip-planner/internal/itinerary"
	"ai-trip-planner/internal/metrics"
	"ai-trip-planner/internal/planner"
	"ai-trip-planner/internal/trip"
	"ai-trip-planner/internal/wizard"
)

const (
	dateLayout  = "2006-01-02"
	progressLen = 10
)

// parseCommand splits "/trip@SomeBot Goa | ..." into ("trip", "Goa | ...").
// Text without a leading slash yields an empty command.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	head, args, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(args)
}

// parseTripArgs reads "destination | duration | YYYY-MM-DD | adults[+children] [| from | style]".
func parseTripArgs(args string) ([]wizard.Action, error) {
	parts := strings.Split(args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 4 {
		return nil, errors.New("expected destination | duration | start date | travellers")
	}

	start, err := time.Parse(dateLayout, parts[2])
	if err != nil {
		return nil, fmt.Errorf("start date %q must look like 2026-12-20", parts[2])
	}
	room, err := parseTravelers(parts[3])
	if err != nil {
		return nil, err
	}

	actions := []wizard.Action{
		wizard.SetDestination{Name: parts[0]},
		wizard.SetStartDate{Date: start},
		wizard.SetDuration{Label: parts[1]},
		wizard.SetRooms{Rooms: []trip.Room{room}},
	}
	if len(parts) > 4 && parts[4] != "" {
		actions = append(actions, wizard.SetFromCity{City: parts[4]})
	}
	if len(parts) > 5 && parts[5] != "" {
		style, err := trip.ParseTravelStyle(parts[5])
		if err != nil {
			return nil, err
		}
		actions = append(actions, wizard.SelectPackage{Style: style})
	}
	return actions, nil
}

func parseTravelers(s string) (trip.Room, error) {
	adults, children, hasChildren := strings.Cut(s, "+")
	var room trip.Room
	var err error
	if room.Adults, err = strconv.Atoi(strings.TrimSpace(adults)); err != nil {
		return trip.Room{}, fmt.Errorf("travellers %q must look like 2 or 2+1", s)
	}
	if hasChildren {
		if room.Children, err = strconv.Atoi(strings.TrimSpace(children)); err != nil {
			return trip.Room{}, fmt.Errorf("travellers %q must look like 2 or 2+1", s)
		}
	}
	return room, nil
}

func progressBar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * progressLen / 100
	return strings.Repeat("▓", filled) + strings.Repeat("░", progressLen-filled)
}

func formatProgress(p planner.Progress) string {
	return fmt.Sprintf("🧭 *Planning your trip*\n`%s` %d%%\n_%s_", progressBar(p.Percent), p.Percent, escape(p.Stage))
}

// formatGenerationError turns a generation failure into something the user
// can act on. Only transient failures suggest trying again.
func formatGenerationError(err error) string {
	switch {
	case errors.Is(err, planner.ErrInvalidInput):
		var ge *planner.GenerationError
		detail := err.Error()
		if errors.As(err, &ge) && ge.Err != nil {
			detail = ge.Err.Error()
		}
		return "⚠️ Some trip details need fixing: " + escape(detail) + "\nUpdate them with /trip or /budget."
	case errors.Is(err, planner.ErrServiceUnavailable):
		return "⏳ The planner is busy right now. Wait a minute and send /generate to try again."
	case errors.Is(err, planner.ErrGenerationFailed):
		return "❌ Something went wrong while planning. Send /generate to try again."
	case errors.Is(err, planner.ErrAuthentication), errors.Is(err, planner.ErrUnsupportedModel):
		return "🛠 The planner is unavailable at the moment. The team has been notified."
	case errors.Is(err, planner.ErrMalformedResponse):
		return "❌ The planner returned an itinerary we could not read. Try changing the destination or duration."
	case errors.Is(err, planner.ErrCancelled):
		return "⌛ Planning took too long and was stopped."
	default:
		return "❌ Could not plan your trip."
	}
}

func formatTripSummary(s wizard.State) string {
	t := s.Trip
	var sb strings.Builder
	sb.WriteString("🗺 *Your trip*\n\n")
	fmt.Fprintf(&sb, "• Destination: %s\n", escape(t.Destination))
	if t.FromCity != "" {
		fmt.Fprintf(&sb, "• From: %s\n", escape(t.FromCity))
	}
	if !t.StartDate.IsZero() {
		fmt.Fprintf(&sb, "• Dates: %s to %s (%d days)\n", t.StartDate.Format(dateLayout), t.EndDate().Format(dateLayout), t.Days())
	}
	fmt.Fprintf(&sb, "• Travellers: %d adults, %d children\n", t.Adults(), t.Children())
	fmt.Fprintf(&sb, "• Style: %s\n", t.StyleOrDefault())
	fmt.Fprintf(&sb, "• Budget: %s\n\n", amount(s.Budget.Total, ""))
	sb.WriteString("Review the split with /budget, then send /generate.")
	return sb.String()
}

func formatBudget(p budget.Plan, currency string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 *Budget*: %s\n\n", amount(p.Total, currency))
	for _, c := range budget.Categories {
		fmt.Fprintf(&sb, "• %s: %d%% (%s)\n", c, p.Breakdown.Get(c), amount(p.Amount(c), currency))
	}
	if left := p.Unallocated(); left != 0 {
		fmt.Fprintf(&sb, "\n⚠️ %d%% still unallocated. Adjust a category so the split reaches 100%%.", left)
	} else {
		sb.WriteString("\n✅ Fully allocated.")
	}
	return sb.String()
}

func formatItinerarySummary(it *itinerary.Itinerary, paymentsEnabled bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ *%s*\n", escape(it.Title))
	if it.Overview != "" {
		fmt.Fprintf(&sb, "_%s_\n", escape(it.Overview))
	}
	sb.WriteString("\n")
	for _, d := range it.Days {
		fmt.Fprintf(&sb, "*Day %d* %s", d.Day, d.Date)
		if d.City != "" {
			fmt.Fprintf(&sb, ", %s", escape(d.City))
		}
		if d.Theme != "" {
			fmt.Fprintf(&sb, ": %s", escape(d.Theme))
		}
		fmt.Fprintf(&sb, " (%s)\n", amount(d.EstimatedCost, it.Currency))
	}
	fmt.Fprintf(&sb, "\n💰 *Total:* %s", amount(it.TotalCost, it.Currency))
	if paymentsEnabled {
		sb.WriteString("\n\nSend /pay to book this trip.")
	}
	return sb.String()
}

func formatHistory(items []planner.StoredItinerary) string {
	if len(items) == 0 {
		return "📭 No trips yet. Start with /trip."
	}
	var sb strings.Builder
	sb.WriteString("🧳 *Recent trips*\n\n")
	for _, s := range items {
		it := s.Itinerary
		fmt.Fprintf(&sb, "• *%s*: %s, %d days, %s", escape(it.Destination), s.StartDate, len(it.Days), amount(it.TotalCost, it.Currency))
		if s.PaymentStatus == planner.PaymentPaid {
			sb.WriteString(" ✅")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatMetrics(usage []metrics.DailyUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		fmt.Fprintf(&sb, "• *%s*: %d tokens (%d execs, %d failed)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution, d.Failures)
	}

	sb.WriteString("\n🧠 *System Health*\n")
	fmt.Fprintf(&sb, "• RAM: %s (Alloc) / %s (Sys)\n", health.Alloc, health.Sys)
	fmt.Fprintf(&sb, "• Goroutines: %d\n", health.Goroutines)
	fmt.Fprintf(&sb, "• Disk Data: %s\n", health.DataDiskSize)
	return sb.String()
}
