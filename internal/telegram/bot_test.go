package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-trip-planner/internal/app"
	"ai-trip-planner/internal/budget"
	"ai-trip-planner/internal/config"
	"ai-trip-planner/internal/itinerary"
	"ai-trip-planner/internal/metrics"
	"ai-trip-planner/internal/payment"
	"ai-trip-planner/internal/planner"
	"ai-trip-planner/internal/trip"
	"ai-trip-planner/internal/wizard"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// texts returns the text of every message and edit sent to chatID.
func (f *fakeSender) texts(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			if m.ChatID == chatID {
				out = append(out, m.Text)
			}
		case tgbotapi.EditMessageTextConfig:
			if m.ChatID == chatID {
				out = append(out, m.Text)
			}
		}
	}
	return out
}

func (f *fakeSender) documents() []tgbotapi.DocumentConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.DocumentConfig
	for _, c := range f.sent {
		if d, ok := c.(tgbotapi.DocumentConfig); ok {
			out = append(out, d)
		}
	}
	return out
}

type fakeService struct {
	calls    int
	result   planner.Result
	err      error
	payments bool
	session  payment.Session
}

func (s *fakeService) GenerateItinerary(_ context.Context, _ string, _ trip.Parameters, _ budget.Plan, onProgress planner.ProgressFunc) (planner.Result, error) {
	s.calls++
	if onProgress != nil {
		onProgress(planner.Progress{State: planner.StageState(1), Stage: "Understanding your trip", Percent: 5})
		onProgress(planner.Progress{State: planner.StageState(4), Stage: "Generating your day-by-day plan", Percent: 40})
	}
	return s.result, s.err
}

func (s *fakeService) History(context.Context, string, int) ([]planner.StoredItinerary, error) {
	return nil, nil
}

func (s *fakeService) StartPayment(context.Context, string, string) (payment.Session, error) {
	return s.session, nil
}

func (s *fakeService) PaymentsEnabled() bool { return s.payments }

func (s *fakeService) UsageReport(context.Context, int) ([]metrics.DailyUsage, error) {
	return []metrics.DailyUsage{{Date: "2026-10-17", TotalPrompt: 100, TotalCompletion: 50, TotalExecution: 2, Failures: 1}}, nil
}

type memorySessions struct {
	mu     sync.Mutex
	states map[string]wizard.State
}

func (m *memorySessions) Load(_ context.Context, userID string) (wizard.State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[userID]
	return s, ok, nil
}

func (m *memorySessions) Save(_ context.Context, userID string, s wizard.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states == nil {
		m.states = map[string]wizard.State{}
	}
	m.states[userID] = s
	return nil
}

func (m *memorySessions) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, userID)
	return nil
}

const (
	userID  int64 = 99
	adminID int64 = 1
)

func newTestBot(service Service) (*Bot, *fakeSender, *memorySessions) {
	api := &fakeSender{}
	sessions := &memorySessions{}
	cfg := &config.Config{Currency: "INR", DefaultBudgetTotal: 50000, AdminTelegramID: adminID, DatabasePath: "data/test.db"}
	b := newBot(api, cfg, service, sessions, nil)
	b.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }
	return b, api, sessions
}

func message(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: from},
		Text:      text,
	}
}

func sampleItinerary() *itinerary.Itinerary {
	return &itinerary.Itinerary{
		ID:          "3f2a9c1e-0000-4000-8000-000000000000",
		Destination: "Goa",
		Title:       "Sun and Sand",
		TotalCost:   12000,
		Currency:    "INR",
		Days: []itinerary.DayPlan{{
			Day: 1, Date: "2026-12-20", City: "Panaji", Theme: "Beaches",
			Accommodation: itinerary.Accommodation{Name: "Casa", Cost: 12000},
			EstimatedCost: 12000,
		}},
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text, cmd, args string
	}{
		{"/start", "start", ""},
		{"/trip Goa | 4-6 Days", "trip", "Goa | 4-6 Days"},
		{"/Budget@TripBot food 25", "budget", "food 25"},
		{"  /generate  ", "generate", ""},
		{"hello there", "", "hello there"},
	}
	for _, tt := range tests {
		cmd, args := parseCommand(tt.text)
		assert.Equal(t, tt.cmd, cmd, tt.text)
		assert.Equal(t, tt.args, args, tt.text)
	}
}

func TestParseTripArgs(t *testing.T) {
	t.Run("Full", func(t *testing.T) {
		actions, err := parseTripArgs("Goa | 4-6 Days | 2026-12-20 | 2+1 | Mumbai | luxury")
		require.NoError(t, err)
		require.Len(t, actions, 6)
		assert.Equal(t, wizard.SetDestination{Name: "Goa"}, actions[0])
		assert.Equal(t, wizard.SetStartDate{Date: time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)}, actions[1])
		assert.Equal(t, wizard.SetDuration{Label: "4-6 Days"}, actions[2])
		assert.Equal(t, wizard.SetRooms{Rooms: []trip.Room{{Adults: 2, Children: 1}}}, actions[3])
		assert.Equal(t, wizard.SetFromCity{City: "Mumbai"}, actions[4])
		assert.Equal(t, wizard.SelectPackage{Style: trip.StyleLuxury}, actions[5])
	})

	t.Run("Minimal", func(t *testing.T) {
		actions, err := parseTripArgs("Goa|3 Days|2026-12-20|2")
		require.NoError(t, err)
		assert.Len(t, actions, 4)
	})

	for _, bad := range []string{"Goa | 4-6 Days", "Goa | 4-6 Days | 20/12/2026 | 2", "Goa | 4-6 Days | 2026-12-20 | two", "Goa | 4-6 Days | 2026-12-20 | 2 | | royal"} {
		_, err := parseTripArgs(bad)
		assert.Error(t, err, bad)
	}
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "░░░░░░░░░░", progressBar(0))
	assert.Equal(t, "▓▓▓▓░░░░░░", progressBar(45))
	assert.Equal(t, "▓▓▓▓▓▓▓▓▓▓", progressBar(100))
	assert.Equal(t, "▓▓▓▓▓▓▓▓▓▓", progressBar(120))

	text := formatProgress(planner.Progress{Percent: 40, Stage: "Generating your day-by-day plan"})
	assert.Contains(t, text, "40%")
	assert.Contains(t, text, "Generating your day-by-day plan")
}

func TestFormatGenerationError(t *testing.T) {
	retryable := []error{
		&planner.GenerationError{Kind: planner.ErrServiceUnavailable, Attempts: 3},
		&planner.GenerationError{Kind: planner.ErrGenerationFailed, Attempts: 2},
	}
	for _, err := range retryable {
		assert.Contains(t, formatGenerationError(err), "/generate", err.Error())
	}

	final := []error{
		&planner.GenerationError{Kind: planner.ErrAuthentication, Attempts: 1},
		&planner.GenerationError{Kind: planner.ErrUnsupportedModel, Attempts: 1},
		&planner.GenerationError{Kind: planner.ErrMalformedResponse, Attempts: 1},
		&planner.GenerationError{Kind: planner.ErrCancelled},
	}
	for _, err := range final {
		assert.NotContains(t, formatGenerationError(err), "/generate", err.Error())
	}

	invalid := &planner.GenerationError{Kind: planner.ErrInvalidInput, Err: trip.ErrMissingDestination}
	assert.Contains(t, formatGenerationError(invalid), "destination is required")
}

func TestFormatBudget(t *testing.T) {
	text := formatBudget(budget.DefaultPlan(50000), "INR")
	assert.Contains(t, text, "accommodation: 40% (20,000 INR)")
	assert.Contains(t, text, "Fully allocated")

	p := budget.DefaultPlan(50000)
	p.Breakdown[0] = 30
	assert.Contains(t, formatBudget(p, "INR"), "10% still unallocated")
}

func TestTripAndGenerateFlow(t *testing.T) {
	ctx := context.Background()
	service := &fakeService{result: planner.Result{Itinerary: sampleItinerary()}, payments: true}
	b, api, sessions := newTestBot(service)

	b.processMessage(ctx, message(userID, "/trip Goa | 4-6 Days | 2026-12-20 | 2+1 | Mumbai"))
	state, found, _ := sessions.Load(ctx, "99")
	require.True(t, found)
	assert.Equal(t, "Goa", state.Trip.Destination)
	assert.Equal(t, wizard.StepBudget, state.Step)

	b.processMessage(ctx, message(userID, "/generate"))
	require.Equal(t, 1, service.calls)

	state, _, _ = sessions.Load(ctx, "99")
	assert.Equal(t, sampleItinerary().ID, state.ItineraryID)
	assert.Equal(t, wizard.StepPayment, state.Step)

	texts := api.texts(userID)
	joined := strings.Join(texts, "\n")
	assert.Contains(t, joined, "▓▓▓▓░░░░░░")
	assert.Contains(t, joined, "Sun and Sand")
	assert.Contains(t, joined, "12,000 INR")
	assert.Contains(t, joined, "/pay")

	docs := api.documents()
	require.Len(t, docs, 1)
	file, ok := docs[0].File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "itinerary-3f2a9c1e.md", file.Name)
	assert.True(t, strings.HasPrefix(string(file.Bytes), "# Sun and Sand"))
}

func TestGenerateNotReady(t *testing.T) {
	service := &fakeService{}
	b, api, _ := newTestBot(service)

	b.processMessage(context.Background(), message(userID, "/generate"))
	assert.Zero(t, service.calls)
	texts := api.texts(userID)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Not ready yet")
}

func TestGenerateFailureAlertsAdmin(t *testing.T) {
	ctx := context.Background()
	service := &fakeService{err: &planner.GenerationError{Kind: planner.ErrAuthentication, Attempts: 1, Err: errors.New("bad key")}}
	b, api, sessions := newTestBot(service)

	b.processMessage(ctx, message(userID, "/trip Goa | 4-6 Days | 2026-12-20 | 2"))
	b.processMessage(ctx, message(userID, "/generate"))

	state, _, _ := sessions.Load(ctx, "99")
	assert.Empty(t, state.ItineraryID)
	assert.Empty(t, api.documents())

	userTexts := api.texts(userID)
	assert.Contains(t, userTexts[len(userTexts)-1], "team has been notified")
	adminTexts := api.texts(adminID)
	require.Len(t, adminTexts, 1)
	assert.Contains(t, adminTexts[0], "Provider misconfigured")
}

func TestGenerateUnsavedItinerary(t *testing.T) {
	ctx := context.Background()
	it := sampleItinerary()
	service := &fakeService{
		result:   planner.Result{Itinerary: it},
		err:      fmt.Errorf("%w: %s: %w", app.ErrNotSaved, it.ID, errors.New("disk full")),
		payments: true,
	}
	b, api, sessions := newTestBot(service)

	b.processMessage(ctx, message(userID, "/trip Goa | 4-6 Days | 2026-12-20 | 2"))
	b.processMessage(ctx, message(userID, "/generate"))

	state, _, _ := sessions.Load(ctx, "99")
	assert.Empty(t, state.ItineraryID)

	userTexts := api.texts(userID)
	last := userTexts[len(userTexts)-1]
	assert.Contains(t, last, "Sun and Sand")
	assert.Contains(t, last, "could not be saved")
	assert.NotContains(t, last, "/pay")
	assert.Len(t, api.documents(), 1)

	adminTexts := api.texts(adminID)
	require.Len(t, adminTexts, 1)
	assert.Contains(t, adminTexts[0], "not saved")
}

func TestBudgetCommands(t *testing.T) {
	ctx := context.Background()
	b, api, sessions := newTestBot(&fakeService{})

	b.processMessage(ctx, message(userID, "/budget total 80,000"))
	state, _, _ := sessions.Load(ctx, "99")
	assert.Equal(t, int64(80000), state.Budget.Total)

	b.processMessage(ctx, message(userID, "/budget food 70"))
	state, _, _ = sessions.Load(ctx, "99")
	assert.Equal(t, 20, state.Budget.Breakdown.Get(budget.Food))
	texts := api.texts(userID)
	assert.Contains(t, texts[len(texts)-1], "⚠️")

	b.processMessage(ctx, message(userID, "/budget reset"))
	state, _, _ = sessions.Load(ctx, "99")
	assert.Equal(t, budget.DefaultBreakdown(), state.Budget.Breakdown)
}

// slowSessions widens the window between loading and saving a session.
type slowSessions struct {
	*memorySessions
	delay time.Duration
}

func (s slowSessions) Load(ctx context.Context, userID string) (wizard.State, bool, error) {
	state, found, err := s.memorySessions.Load(ctx, userID)
	time.Sleep(s.delay)
	return state, found, err
}

func TestConcurrentBudgetEditsAreAllApplied(t *testing.T) {
	ctx := context.Background()
	b, api, sessions := newTestBot(&fakeService{})
	b.sessions = slowSessions{memorySessions: sessions, delay: 5 * time.Millisecond}

	edits := []string{
		"/budget shopping 0",
		"/budget activities 5",
		"/budget food 15",
		"/budget transportation 20",
		"/budget total 90000",
	}
	var wg sync.WaitGroup
	for _, text := range edits {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			b.processMessage(ctx, message(userID, text))
		}(text)
	}
	wg.Wait()

	state, found, _ := sessions.Load(ctx, "99")
	require.True(t, found)
	assert.Equal(t, int64(90000), state.Budget.Total)
	assert.Equal(t, 0, state.Budget.Breakdown.Get(budget.Shopping))
	assert.Equal(t, 5, state.Budget.Breakdown.Get(budget.Activities))
	assert.Equal(t, 15, state.Budget.Breakdown.Get(budget.Food))
	assert.Equal(t, 20, state.Budget.Breakdown.Get(budget.Transportation))
	assert.Len(t, api.texts(userID), len(edits))

	b.mu.Lock()
	assert.Empty(t, b.userLocks)
	b.mu.Unlock()
}

func TestPayFlow(t *testing.T) {
	ctx := context.Background()
	service := &fakeService{
		result:   planner.Result{Itinerary: sampleItinerary()},
		payments: true,
		session:  payment.Session{ID: "cs_1", URL: "https://pay.example/cs_1", Status: payment.StatusOpen},
	}
	b, api, sessions := newTestBot(service)

	b.processMessage(ctx, message(userID, "/pay"))
	texts := api.texts(userID)
	assert.Contains(t, texts[len(texts)-1], "Generate an itinerary first")

	b.processMessage(ctx, message(userID, "/trip Goa | 4-6 Days | 2026-12-20 | 2"))
	b.processMessage(ctx, message(userID, "/generate"))
	b.processMessage(ctx, message(userID, "/pay"))

	texts = api.texts(userID)
	assert.Contains(t, texts[len(texts)-1], "https://pay.example/cs_1")
	state, _, _ := sessions.Load(ctx, "99")
	assert.Equal(t, "cs_1", state.PaymentRef)
	assert.False(t, state.Paid)

	service.session.Status = payment.StatusPaid
	b.processMessage(ctx, message(userID, "/pay"))
	state, _, _ = sessions.Load(ctx, "99")
	assert.True(t, state.Paid)
	assert.Equal(t, wizard.StepDone, state.Step)
}

func TestMetricsAdminOnly(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(&fakeService{})

	b.processMessage(ctx, message(userID, "/metrics"))
	assert.Contains(t, api.texts(userID)[0], "Access Denied")

	b.processMessage(ctx, message(adminID, "/metrics"))
	report := api.texts(adminID)[0]
	assert.Contains(t, report, "150 tokens (2 execs, 1 failed)")
	assert.Contains(t, report, "Goroutines")
}

func TestWebhookRejectsUnknownUsers(t *testing.T) {
	b, api, _ := newTestBot(&fakeService{})
	b.cfg.TelegramAllowedUserIDs = []int64{adminID}
	mux := http.NewServeMux()
	b.RegisterHandlers(mux)

	post := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusBadRequest, post("{not json"))
	assert.Equal(t, http.StatusOK, post(`{"update_id":1,"message":{"message_id":1,"from":{"id":99},"chat":{"id":99},"text":"/help"}}`))
	assert.Equal(t, http.StatusOK, post(`{"update_id":2,"message":{"message_id":2,"from":{"id":1},"chat":{"id":1},"text":"/help"}}`))
	b.Wait()

	assert.Empty(t, api.texts(userID))
	require.Len(t, api.texts(adminID), 1)
	assert.Contains(t, api.texts(adminID)[0], "Trip Planner")
}
