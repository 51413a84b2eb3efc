package app

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ai-trip-planner/internal/budget"
	"ai-trip-planner/internal/config"
	"ai-trip-planner/internal/database"
	"ai-trip-planner/internal/export"
	"ai-trip-planner/internal/llm"
	"ai-trip-planner/internal/metrics"
	"ai-trip-planner/internal/payment"
	"ai-trip-planner/internal/planner"
	"ai-trip-planner/internal/shared"
	"ai-trip-planner/internal/trip"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	content string
	err     error
}

func (g stubGenerator) GenerateContent(context.Context, string) (llm.ContentResponse, error) {
	if g.err != nil {
		return llm.ContentResponse{}, g.err
	}
	return llm.ContentResponse{
		Content: g.content,
		Usage:   shared.TokenUsage{PromptTokens: 50, CompletionTokens: 150, Model: "stub"},
	}, nil
}

type fakeCheckout struct {
	created  []payment.Request
	sessions map[string]payment.Session
}

func (f *fakeCheckout) CreateCheckout(_ context.Context, req payment.Request) (payment.Session, error) {
	f.created = append(f.created, req)
	s := payment.Session{ID: fmt.Sprintf("cs_%d", len(f.created)), URL: "https://pay.example/" + req.ItineraryID, Status: payment.StatusOpen}
	if f.sessions == nil {
		f.sessions = map[string]payment.Session{}
	}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeCheckout) GetCheckout(_ context.Context, id string) (payment.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return payment.Session{}, fmt.Errorf("no such session %s", id)
	}
	return s, nil
}

func oneDayResponse() string {
	return `{"title": "Day in Pondy", "days": [{
		"activities": [{"title": "Promenade", "cost": 0}, {"title": "Auroville", "cost": 500}],
		"meals": [{"restaurant": "Cafe", "type": "lunch", "cost": 700}],
		"accommodation": {"name": "Villa", "cost": 5000},
		"transport": {"mode": "scooter", "cost": 300}
	}]}`
}

func tripParams() trip.Parameters {
	return trip.Parameters{
		Destination:   "Pondicherry",
		DurationLabel: "1 Day",
		StartDate:     time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		Rooms:         []trip.Room{{Adults: 2}},
	}
}

func newTestApp(t *testing.T, gen llm.TextGenerator, checkout payment.Checkout) *App {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "app.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := planner.NewPlanner(gen,
		planner.WithStageDelay(0),
		planner.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
	return NewApp(&config.Config{Currency: "INR"}, p, planner.NewItineraryRepository(db.SQL), metrics.NewStore(db.SQL), checkout, nil)
}

func TestGenerateItinerary(t *testing.T) {
	ctx := context.Background()

	t.Run("SavesAndRecords", func(t *testing.T) {
		a := newTestApp(t, stubGenerator{content: oneDayResponse()}, nil)

		res, err := a.GenerateItinerary(ctx, "42", tripParams(), budget.DefaultPlan(20000), nil)
		require.NoError(t, err)
		assert.Equal(t, int64(6500), res.Itinerary.TotalCost)

		history, err := a.History(ctx, "42", 5)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, res.Itinerary.ID, history[0].Itinerary.ID)

		usage, err := a.UsageReport(ctx, 1)
		require.NoError(t, err)
		require.Len(t, usage, 1)
		assert.Equal(t, 1, usage[0].TotalExecution)
		assert.Equal(t, 0, usage[0].Failures)
	})

	t.Run("FailureIsRecordedNotSaved", func(t *testing.T) {
		authErr := &llm.APIError{Provider: "groq", StatusCode: 401}
		a := newTestApp(t, stubGenerator{err: authErr}, nil)

		_, err := a.GenerateItinerary(ctx, "42", tripParams(), budget.DefaultPlan(20000), nil)
		require.ErrorIs(t, err, planner.ErrAuthentication)

		history, err := a.History(ctx, "42", 5)
		require.NoError(t, err)
		assert.Empty(t, history)

		usage, err := a.UsageReport(ctx, 1)
		require.NoError(t, err)
		require.Len(t, usage, 1)
		assert.Equal(t, 1, usage[0].Failures)
	})

	t.Run("SaveFailureIsReported", func(t *testing.T) {
		db, err := database.NewDB(filepath.Join(t.TempDir(), "app.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		p := planner.NewPlanner(stubGenerator{content: oneDayResponse()}, planner.WithStageDelay(0))
		a := NewApp(&config.Config{Currency: "INR"}, p, planner.NewItineraryRepository(db.SQL), metrics.NewStore(db.SQL), nil, nil)

		_, err = db.SQL.ExecContext(ctx, "DROP TABLE itineraries")
		require.NoError(t, err)

		res, err := a.GenerateItinerary(ctx, "42", tripParams(), budget.DefaultPlan(20000), nil)
		require.ErrorIs(t, err, ErrNotSaved)
		require.NotNil(t, res.Itinerary)
		assert.Contains(t, err.Error(), res.Itinerary.ID)
		assert.True(t, res.Meta.Succeeded)

		usage, err := a.UsageReport(ctx, 1)
		require.NoError(t, err)
		require.Len(t, usage, 1)
		assert.Equal(t, 1, usage[0].TotalExecution)
	})
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, stubGenerator{content: oneDayResponse()}, nil)
	res, err := a.GenerateItinerary(ctx, "42", tripParams(), budget.DefaultPlan(20000), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, a.Export(ctx, res.Itinerary.ID, export.FormatMarkdown, &buf))
	assert.True(t, strings.HasPrefix(buf.String(), "# Day in Pondy"))

	assert.ErrorIs(t, a.Export(ctx, "missing", export.FormatCSV, &buf), planner.ErrItineraryNotFound)
}

func TestStartPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("Disabled", func(t *testing.T) {
		a := newTestApp(t, stubGenerator{content: oneDayResponse()}, nil)
		assert.False(t, a.PaymentsEnabled())
		_, err := a.StartPayment(ctx, "42", "whatever")
		assert.ErrorIs(t, err, payment.ErrDisabled)
	})

	t.Run("CreatesThenReusesOpenSession", func(t *testing.T) {
		checkout := &fakeCheckout{}
		a := newTestApp(t, stubGenerator{content: oneDayResponse()}, checkout)
		res, err := a.GenerateItinerary(ctx, "42", tripParams(), budget.DefaultPlan(20000), nil)
		require.NoError(t, err)

		first, err := a.StartPayment(ctx, "42", res.Itinerary.ID)
		require.NoError(t, err)
		require.Len(t, checkout.created, 1)
		assert.Equal(t, int64(6500), checkout.created[0].Amount)
		assert.Equal(t, "INR", checkout.created[0].Currency)

		stored, err := a.Itinerary(ctx, res.Itinerary.ID)
		require.NoError(t, err)
		assert.Equal(t, planner.PaymentPending, stored.PaymentStatus)
		assert.Equal(t, first.ID, stored.PaymentRef)

		second, err := a.StartPayment(ctx, "42", res.Itinerary.ID)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Len(t, checkout.created, 1)
	})

	t.Run("RecognizesPaidSession", func(t *testing.T) {
		checkout := &fakeCheckout{}
		a := newTestApp(t, stubGenerator{content: oneDayResponse()}, checkout)
		res, err := a.GenerateItinerary(ctx, "42", tripParams(), budget.DefaultPlan(20000), nil)
		require.NoError(t, err)

		s, err := a.StartPayment(ctx, "42", res.Itinerary.ID)
		require.NoError(t, err)
		s.Status = payment.StatusPaid
		checkout.sessions[s.ID] = s

		got, err := a.StartPayment(ctx, "42", res.Itinerary.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPaid, got.Status)

		stored, err := a.Itinerary(ctx, res.Itinerary.ID)
		require.NoError(t, err)
		assert.Equal(t, planner.PaymentPaid, stored.PaymentStatus)
	})

	t.Run("RejectsOtherUsers", func(t *testing.T) {
		a := newTestApp(t, stubGenerator{content: oneDayResponse()}, &fakeCheckout{})
		res, err := a.GenerateItinerary(ctx, "42", tripParams(), budget.DefaultPlan(20000), nil)
		require.NoError(t, err)

		_, err = a.StartPayment(ctx, "7", res.Itinerary.ID)
		assert.ErrorIs(t, err, ErrNotOwner)
	})
}

func TestCleanupMetrics(t *testing.T) {
	a := newTestApp(t, stubGenerator{content: oneDayResponse()}, nil)
	removed, err := a.CleanupMetrics(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}
