package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"ai-trip-planner/internal/app"
	"ai-trip-planner/internal/budget"
	"ai-trip-planner/internal/export"
	"ai-trip-planner/internal/planner"
	"ai-trip-planner/internal/trip"
	"ai-trip-planner/internal/wizard"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const cliUser = "cli"

// tripFlags collects the generate command's trip details.
type tripFlags struct {
	destination string
	duration    string
	start       string
	adults      int
	children    int
	from        string
	style       string
	total       int64
	split       map[string]int
	format      string
	output      string
	user        string
}

var genFlags tripFlags

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an itinerary",
	Long: `Generate a day-by-day itinerary and store it.

Example:
  ai-trip-planner generate --destination Goa --duration "4-6 Days" \
    --start 2026-12-20 --adults 2 --children 1 --budget 80000 \
    --split food=25,shopping=0`,
	RunE: runGenerate,
}

var listLimit int
var listUser string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recently generated itineraries",
	RunE:  runList,
}

var exportFormat string
var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <itinerary-id>",
	Short: "Export a stored itinerary as markdown, csv or json",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var cleanupDays int

var metricsCleanupCmd = &cobra.Command{
	Use:   "metrics-cleanup",
	Short: "Remove old metric records",
	RunE:  runMetricsCleanup,
}

var usageDays int

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show daily LLM token usage",
	RunE:  runUsage,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&genFlags.destination, "destination", "", "Destination city or region (required)")
	f.StringVar(&genFlags.duration, "duration", "4-6 Days", "Duration label, e.g. \"4-6 Days\" or \"8 Days\"")
	f.StringVar(&genFlags.start, "start", "", "Start date as YYYY-MM-DD (required)")
	f.IntVar(&genFlags.adults, "adults", 2, "Number of adults")
	f.IntVar(&genFlags.children, "children", 0, "Number of children")
	f.StringVar(&genFlags.from, "from", "", "Departure city")
	f.StringVar(&genFlags.style, "style", string(trip.StyleBalanced), "Travel style: budget, balanced or luxury")
	f.Int64Var(&genFlags.total, "budget", 0, "Budget total in whole currency units (default from config)")
	f.StringToIntVar(&genFlags.split, "split", nil, "Category percentages, e.g. food=25,shopping=0")
	f.StringVarP(&genFlags.format, "format", "f", "markdown", "Output format: markdown, csv or json")
	f.StringVarP(&genFlags.output, "output", "o", "", "Write the itinerary to this file instead of stdout")
	f.StringVar(&genFlags.user, "user", cliUser, "Owner recorded with the itinerary")
	generateCmd.MarkFlagRequired("destination")
	generateCmd.MarkFlagRequired("start")

	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "Number of itineraries to show")
	listCmd.Flags().StringVar(&listUser, "user", cliUser, "Owner to list itineraries for")

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "Output format (default from the file extension, else markdown)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to this file instead of stdout")

	metricsCleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Keep records for the last N days")

	usageCmd.Flags().IntVar(&usageDays, "days", 7, "Number of days to report")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(genFlags.format)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	application, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	state, err := buildTripState(genFlags, application.Config().DefaultBudgetTotal, time.Now())
	if err != nil {
		return err
	}

	progress := cmd.ErrOrStderr()
	res, err := application.GenerateItinerary(ctx, genFlags.user, state.Trip, state.Budget, func(p planner.Progress) {
		fmt.Fprintf(progress, "[%3d%%] %s\n", p.Percent, p.Stage)
	})
	if err != nil && (res.Itinerary == nil || !errors.Is(err, app.ErrNotSaved)) {
		return err
	}
	saveErr := err
	if saveErr == nil {
		fmt.Fprintf(progress, "Saved itinerary %s (%d tokens, %d attempt(s))\n",
			res.Itinerary.ID, res.Meta.Usage.PromptTokens+res.Meta.Usage.CompletionTokens, res.Meta.Attempts)
	}

	// An unsaved itinerary is still printed before the command fails.
	if err := writeOutput(cmd.OutOrStdout(), genFlags.output, func(w io.Writer) error {
		return export.Write(w, format, res.Itinerary)
	}); err != nil {
		return err
	}
	return saveErr
}

// buildTripState runs the flags through the wizard so the CLI accepts exactly
// what the chat front-end accepts.
func buildTripState(f tripFlags, defaultTotal int64, now time.Time) (wizard.State, error) {
	start, err := time.Parse("2006-01-02", f.start)
	if err != nil {
		return wizard.State{}, fmt.Errorf("invalid --start %q: expected YYYY-MM-DD", f.start)
	}
	style, err := trip.ParseTravelStyle(f.style)
	if err != nil {
		return wizard.State{}, err
	}

	actions := []wizard.Action{
		wizard.SetDestination{Name: f.destination},
		wizard.SetStartDate{Date: start},
		wizard.SetDuration{Label: f.duration},
		wizard.SetRooms{Rooms: []trip.Room{{Adults: f.adults, Children: f.children}}},
		wizard.SetFromCity{City: f.from},
	}
	if f.total != 0 {
		actions = append(actions, wizard.SetBudgetTotal{Amount: f.total})
	}

	state := wizard.New(defaultTotal)
	// Lowered shares first so raising another category never overshoots 100%.
	names := make([]string, 0, len(f.split))
	for name := range f.split {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return f.split[names[i]]-defaultShare(names[i]) < f.split[names[j]]-defaultShare(names[j])
	})
	for _, name := range names {
		c, err := budget.ParseCategory(strings.ToLower(name))
		if err != nil {
			return wizard.State{}, err
		}
		actions = append(actions, wizard.SetCategoryPercentage{Category: c, Percent: f.split[name]})
	}
	actions = append(actions, wizard.ConfirmBudget{}, wizard.SelectPackage{Style: style})

	for _, a := range actions {
		if state, err = wizard.Reduce(state, a, now); err != nil {
			return wizard.State{}, err
		}
	}
	return state, state.CanGenerate()
}

func defaultShare(name string) int {
	return budget.DefaultBreakdown().Get(budget.Category(strings.ToLower(name)))
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	application, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	items, err := application.History(ctx, listUser, listLimit)
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), items)
	return nil
}

func printHistory(out io.Writer, items []planner.StoredItinerary) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No itineraries yet.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDESTINATION\tSTART\tDAYS\tTOTAL\tPAYMENT\tCREATED")
	for _, s := range items {
		it := s.Itinerary
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s %s\t%s\t%s\n",
			it.ID, it.Destination, s.StartDate, len(it.Days),
			humanize.Comma(it.TotalCost), it.Currency, s.PaymentStatus, humanize.Time(s.CreatedAt))
	}
	tw.Flush()
}

func runExport(cmd *cobra.Command, args []string) error {
	name := exportFormat
	if name == "" {
		name = filepath.Ext(exportOutput)
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	application, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	return writeOutput(cmd.OutOrStdout(), exportOutput, func(w io.Writer) error {
		return application.Export(ctx, args[0], format, w)
	})
}

func runMetricsCleanup(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	application, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	affected, err := application.CleanupMetrics(ctx, cleanupDays)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Successfully removed %d old metric records.\n", affected)
	return nil
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	application, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	usage, err := application.UsageReport(ctx, usageDays)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tEXECUTIONS\tFAILURES\tPROMPT\tCOMPLETION")
	for _, d := range usage {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", d.Date, d.TotalExecution, d.Failures,
			humanize.Comma(int64(d.TotalPrompt)), humanize.Comma(int64(d.TotalCompletion)))
	}
	return tw.Flush()
}

// writeOutput sends render to path, or to stdout when path is empty.
func writeOutput(stdout io.Writer, path string, render func(io.Writer) error) error {
	if path == "" {
		return render(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
