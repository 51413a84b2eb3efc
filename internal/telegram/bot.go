package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"ai-trip-planner/internal/app"
	"ai-trip-planner/internal/budget"
	"ai-trip-planner/internal/config"
	"ai-trip-planner/internal/export"
	"ai-trip-planner/internal/metrics"
	"ai-trip-planner/internal/payment"
	"ai-trip-planner/internal/planner"
	"ai-trip-planner/internal/trip"
	"ai-trip-planner/internal/wizard"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	generationTimeout = 5 * time.Minute
	historyLimit      = 5
	// Prompts above this size usually mean the template grew by accident.
	promptTokenAlert = 4000
)

// Service is what the bot needs from the application layer.
type Service interface {
	GenerateItinerary(ctx context.Context, userID string, params trip.Parameters, plan budget.Plan, onProgress planner.ProgressFunc) (planner.Result, error)
	History(ctx context.Context, userID string, limit int) ([]planner.StoredItinerary, error)
	StartPayment(ctx context.Context, userID, itineraryID string) (payment.Session, error)
	PaymentsEnabled() bool
	UsageReport(ctx context.Context, days int) ([]metrics.DailyUsage, error)
}

// SessionStore keeps the wizard state of each user.
type SessionStore interface {
	Load(ctx context.Context, userID string) (wizard.State, bool, error)
	Save(ctx context.Context, userID string, s wizard.State) error
	Delete(ctx context.Context, userID string) error
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot is the Telegram front-end of the trip wizard.
type Bot struct {
	api      sender
	service  Service
	sessions SessionStore
	cfg      *config.Config
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	generating map[int64]bool
	userLocks  map[int64]*userLock
	wg         sync.WaitGroup
}

// userLock serializes session edits of one user. refs counts holders and
// waiters so idle entries can be dropped.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, service Service, sessions SessionStore, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Info("authorized on telegram", zap.String("account", api.Self.UserName))

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %q: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	logger.Info("webhook set", zap.String("description", resp.Description))

	return newBot(api, cfg, service, sessions, logger), nil
}

func newBot(api sender, cfg *config.Config, service Service, sessions SessionStore, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:        api,
		service:    service,
		sessions:   sessions,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		generating: make(map[int64]bool),
		userLocks:  make(map[int64]*userLock),
	}
}

// RegisterHandlers registers the webhook and health handlers on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// Wait blocks until in-flight updates have been handled.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.logger.Warn("error parsing update", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if !b.isAllowed(msg.From.ID) {
		b.logger.Warn("unauthorized access attempt", zap.Int64("user_id", msg.From.ID), zap.String("username", msg.From.UserName))
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.processMessage(context.Background(), msg)
	}()
}

func (b *Bot) isAllowed(id int64) bool {
	if len(b.cfg.TelegramAllowedUserIDs) == 0 {
		return true
	}
	for _, allowed := range b.cfg.TelegramAllowedUserIDs {
		if id == allowed {
			return true
		}
	}
	return false
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	cmd, args := parseCommand(msg.Text)
	switch cmd {
	case "start", "help":
		b.handleStart(ctx, msg)
	case "trip":
		b.handleTrip(ctx, msg, args)
	case "budget":
		b.handleBudget(ctx, msg, args)
	case "style":
		b.handleStyle(ctx, msg, args)
	case "generate":
		b.handleGenerate(ctx, msg)
	case "pay":
		b.handlePay(ctx, msg)
	case "history":
		b.handleHistory(ctx, msg)
	case "metrics":
		b.handleMetricsRequest(ctx, msg)
	default:
		b.reply(msg.Chat.ID, "I did not get that. Send /help to see what I can do.")
	}
}

const helpText = `✈️ *Trip Planner*

1. /trip Goa | 4-6 Days | 2026-12-20 | 2+1 | Mumbai | balanced
   _destination | duration | start date | adults+children | from city | style_
2. /budget to review the split, /budget total 80000, /budget food 25, /budget reset
3. /style budget, balanced or luxury
4. /generate to build your itinerary
5. /pay to book it, /history for past trips`

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	unlock := b.lockUser(msg.From.ID)
	defer unlock()

	state := wizard.New(b.cfg.DefaultBudgetTotal)
	if err := b.sessions.Save(ctx, userKey(msg), state); err != nil {
		b.logger.Warn("failed to reset session", zap.Error(err))
	}
	b.reply(msg.Chat.ID, helpText)
}

func (b *Bot) handleTrip(ctx context.Context, msg *tgbotapi.Message, args string) {
	actions, err := parseTripArgs(args)
	if err != nil {
		b.reply(msg.Chat.ID, "⚠️ "+escape(err.Error())+"\n\nExample: `/trip Goa | 4-6 Days | 2026-12-20 | 2+1`")
		return
	}
	state, ok := b.update(ctx, msg, actions...)
	if !ok {
		return
	}
	b.reply(msg.Chat.ID, formatTripSummary(state))
}

func (b *Bot) handleBudget(ctx context.Context, msg *tgbotapi.Message, args string) {
	fields := strings.Fields(strings.ToLower(args))
	var action wizard.Action
	switch {
	case len(fields) == 0:
		state := b.loadState(ctx, msg)
		b.reply(msg.Chat.ID, formatBudget(state.Budget, b.cfg.Currency))
		return
	case len(fields) == 1 && fields[0] == "reset":
		action = wizard.ResetBudget{}
	case len(fields) == 2 && fields[0] == "total":
		total, err := strconv.ParseInt(strings.ReplaceAll(fields[1], ",", ""), 10, 64)
		if err != nil {
			b.reply(msg.Chat.ID, "⚠️ The total must be a whole number, e.g. `/budget total 80000`")
			return
		}
		action = wizard.SetBudgetTotal{Amount: total}
	case len(fields) == 2:
		c, err := budget.ParseCategory(fields[0])
		if err != nil {
			b.reply(msg.Chat.ID, "⚠️ "+escape(err.Error()))
			return
		}
		pct, err := strconv.Atoi(strings.TrimSuffix(fields[1], "%"))
		if err != nil {
			b.reply(msg.Chat.ID, "⚠️ The percentage must be a whole number, e.g. `/budget food 25`")
			return
		}
		action = wizard.SetCategoryPercentage{Category: c, Percent: pct}
	default:
		b.reply(msg.Chat.ID, "⚠️ Usage: `/budget`, `/budget total <amount>`, `/budget <category> <percent>` or `/budget reset`")
		return
	}

	state, ok := b.update(ctx, msg, action)
	if !ok {
		return
	}
	b.reply(msg.Chat.ID, formatBudget(state.Budget, b.cfg.Currency))
}

func (b *Bot) handleStyle(ctx context.Context, msg *tgbotapi.Message, args string) {
	style, err := trip.ParseTravelStyle(args)
	if err != nil {
		b.reply(msg.Chat.ID, "⚠️ Pick one of: budget, balanced, luxury")
		return
	}
	if _, ok := b.update(ctx, msg, wizard.SelectPackage{Style: style}); ok {
		b.reply(msg.Chat.ID, fmt.Sprintf("🎒 Travel style set to *%s*. Send /generate when ready.", style))
	}
}

func (b *Bot) handleGenerate(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := userKey(msg)

	state := b.loadState(ctx, msg)
	if err := state.CanGenerate(); err != nil {
		b.reply(chatID, "⚠️ Not ready yet: "+escape(err.Error())+"\nUse /trip and /budget to complete your plan.")
		return
	}

	if !b.beginGeneration(msg.From.ID) {
		b.reply(chatID, "⏳ Your itinerary is already being generated.")
		return
	}
	defer b.endGeneration(msg.From.ID)

	sent, err := b.api.Send(markdownMessage(chatID, "🧭 *Planning your trip...*"))
	if err != nil {
		b.logger.Warn("failed to send initial reply", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	lastText := ""
	onProgress := func(p planner.Progress) {
		text := formatProgress(p)
		if text == lastText || p.State.Terminal() {
			return
		}
		lastText = text
		b.edit(chatID, sent.MessageID, text)
	}

	res, err := b.service.GenerateItinerary(ctx, userID, state.Trip, state.Budget, onProgress)
	if res.Meta.Usage.PromptTokens > promptTokenAlert {
		b.sendAdminAlert(fmt.Sprintf("⚠️ *Context Bloat Alert*\nAgent: %s\nModel: %s\nPrompt Tokens: %d",
			res.Meta.AgentName, res.Meta.Usage.Model, res.Meta.Usage.PromptTokens))
	}
	saved := true
	if err != nil {
		b.logger.Warn("error generating itinerary", zap.String("user_id", userID), zap.Error(err))
		if !errors.Is(err, app.ErrNotSaved) || res.Itinerary == nil {
			if errors.Is(err, planner.ErrAuthentication) || errors.Is(err, planner.ErrUnsupportedModel) {
				b.sendAdminAlert("🚨 *Provider misconfigured*\n" + escape(err.Error()))
			}
			b.edit(chatID, sent.MessageID, formatGenerationError(err))
			return
		}
		b.sendAdminAlert("🚨 *Itinerary not saved*\n" + escape(err.Error()))
		saved = false
	}

	it := res.Itinerary
	if saved {
		if _, ok := b.update(ctx, msg, wizard.ItineraryGenerated{ID: it.ID}); !ok {
			return
		}
		b.edit(chatID, sent.MessageID, formatItinerarySummary(it, b.service.PaymentsEnabled()))
	} else {
		b.edit(chatID, sent.MessageID, formatItinerarySummary(it, false)+
			"\n\n⚠️ This trip could not be saved, so it will not show in /history and cannot be booked. Send /generate to try again.")
	}

	var doc bytes.Buffer
	if err := export.Markdown(&doc, it); err != nil {
		b.logger.Warn("failed to render itinerary document", zap.Error(err))
		return
	}
	name := it.ID
	if len(name) > 8 {
		name = name[:8]
	}
	file := tgbotapi.FileBytes{Name: "itinerary-" + name + ".md", Bytes: doc.Bytes()}
	if _, err := b.api.Send(tgbotapi.NewDocument(chatID, file)); err != nil {
		b.logger.Warn("failed to send itinerary document", zap.Error(err))
	}
}

func (b *Bot) handlePay(ctx context.Context, msg *tgbotapi.Message) {
	if !b.service.PaymentsEnabled() {
		b.reply(msg.Chat.ID, "💳 Payments are not available yet.")
		return
	}
	state := b.loadState(ctx, msg)
	if state.ItineraryID == "" {
		b.reply(msg.Chat.ID, "⚠️ Generate an itinerary first with /generate.")
		return
	}
	if state.Paid {
		b.reply(msg.Chat.ID, "✅ This trip is already paid.")
		return
	}

	session, err := b.service.StartPayment(ctx, userKey(msg), state.ItineraryID)
	if err != nil {
		b.logger.Warn("failed to start payment", zap.String("itinerary_id", state.ItineraryID), zap.Error(err))
		b.reply(msg.Chat.ID, "❌ Could not start the payment. Please try again later.")
		return
	}

	if session.Status == payment.StatusPaid {
		b.update(ctx, msg, wizard.PaymentCompleted{})
		b.reply(msg.Chat.ID, "✅ Payment received. Have a great trip!")
		return
	}
	if _, ok := b.update(ctx, msg, wizard.PaymentStarted{Ref: session.ID}); !ok {
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("💳 Complete your booking here:\n%s", session.URL))
}

func (b *Bot) handleHistory(ctx context.Context, msg *tgbotapi.Message) {
	items, err := b.service.History(ctx, userKey(msg), historyLimit)
	if err != nil {
		b.logger.Warn("failed to list history", zap.Error(err))
		b.reply(msg.Chat.ID, "❌ Error fetching your trips.")
		return
	}
	b.reply(msg.Chat.ID, formatHistory(items))
}

func (b *Bot) handleMetricsRequest(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From.ID != b.cfg.AdminTelegramID {
		b.reply(msg.Chat.ID, "⛔ *Access Denied*: Admin only.")
		return
	}

	usage, err := b.service.UsageReport(ctx, 7)
	if err != nil {
		b.reply(msg.Chat.ID, "❌ Error fetching metrics.")
		return
	}
	b.reply(msg.Chat.ID, formatMetrics(usage, metrics.GetSysHealth(filepath.Dir(b.cfg.DatabasePath))))
}

// update applies actions to the stored wizard state and saves the result.
// Rejections are reported to the user and leave the stored state untouched.
// The load and save happen under the user's lock.
func (b *Bot) update(ctx context.Context, msg *tgbotapi.Message, actions ...wizard.Action) (wizard.State, bool) {
	unlock := b.lockUser(msg.From.ID)
	defer unlock()

	state := b.loadState(ctx, msg)
	for _, a := range actions {
		next, err := wizard.Reduce(state, a, b.now())
		if err != nil {
			b.reply(msg.Chat.ID, "⚠️ "+escape(err.Error()))
			return state, false
		}
		state = next
	}
	if err := b.sessions.Save(ctx, userKey(msg), state); err != nil {
		b.logger.Warn("failed to save session", zap.Error(err))
		b.reply(msg.Chat.ID, "❌ Could not save your changes. Please try again.")
		return state, false
	}
	return state, true
}

func (b *Bot) loadState(ctx context.Context, msg *tgbotapi.Message) wizard.State {
	state, found, err := b.sessions.Load(ctx, userKey(msg))
	if err != nil {
		b.logger.Warn("failed to load session", zap.Error(err))
	}
	if !found {
		return wizard.New(b.cfg.DefaultBudgetTotal)
	}
	return state
}

func (b *Bot) beginGeneration(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generating[userID] {
		return false
	}
	b.generating[userID] = true
	return true
}

func (b *Bot) endGeneration(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.generating, userID)
}

// lockUser blocks until userID's session lock is held and returns its release.
func (b *Bot) lockUser(userID int64) func() {
	b.mu.Lock()
	l, ok := b.userLocks[userID]
	if !ok {
		l = &userLock{}
		b.userLocks[userID] = l
	}
	l.refs++
	b.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		b.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(b.userLocks, userID)
		}
		b.mu.Unlock()
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(markdownMessage(chatID, text)); err != nil {
		b.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) edit(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Debug("failed to edit message", zap.Error(err))
	}
}

func (b *Bot) sendAdminAlert(text string) {
	if b.cfg.AdminTelegramID == 0 {
		return
	}
	b.reply(b.cfg.AdminTelegramID, text)
}

func markdownMessage(chatID int64, text string) tgbotapi.MessageConfig {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeMarkdown
	return m
}

func userKey(msg *tgbotapi.Message) string {
	return strconv.FormatInt(msg.From.ID, 10)
}


func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func amount(v int64, currency string) string {
	if currency == "" {
		return humanize.Comma(v)
	}
	return humanize.Comma(v) + " " + currency
}
