package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"ai-trip-planner/internal/budget"
	"ai-trip-planner/internal/config"
	"ai-trip-planner/internal/database"
	"ai-trip-planner/internal/export"
	"ai-trip-planner/internal/llm"
	"ai-trip-planner/internal/metrics"
	"ai-trip-planner/internal/payment"
	"ai-trip-planner/internal/planner"
	"ai-trip-planner/internal/trip"

	"go.uber.org/zap"
)

// ErrNotOwner is returned when a user touches someone else's itinerary.
var ErrNotOwner = errors.New("itinerary belongs to another user")

// ErrNotSaved is returned alongside a generated itinerary that could not be
// stored. The itinerary is still usable but has no history or payment.
var ErrNotSaved = errors.New("itinerary was generated but not saved")

// App holds the application's dependencies.
type App struct {
	planner      *planner.Planner
	repo         *planner.ItineraryRepository
	metricsStore *metrics.Store
	checkout     payment.Checkout
	cfg          *config.Config
	logger       *zap.Logger

	db      *sql.DB
	closers []func() error
}

// NewApp creates and initializes a new App instance. checkout may be nil when
// payments are not configured.
func NewApp(
	cfg *config.Config,
	tripPlanner *planner.Planner,
	repo *planner.ItineraryRepository,
	metricsStore *metrics.Store,
	checkout payment.Checkout,
	logger *zap.Logger,
) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		planner:      tripPlanner,
		repo:         repo,
		metricsStore: metricsStore,
		checkout:     checkout,
		cfg:          cfg,
		logger:       logger,
	}
}

// Open wires every dependency from cfg. Call Close when done.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.NewDB(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	client, err := llm.NewClient(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize %s client: %w", cfg.LLMProvider, err)
	}
	logger.Info("llm provider ready", zap.String("provider", cfg.LLMProvider), zap.String("model", client.Model()))

	var checkout payment.Checkout
	if cfg.PaymentsEnabled() {
		sc, err := payment.NewStripeCheckout(payment.StripeConfig{
			APIKey:     cfg.StripeSecretKey,
			SuccessURL: cfg.StripeSuccessURL,
			CancelURL:  cfg.StripeCancelURL,
			Logger:     logger.Named("payment"),
		})
		if err != nil {
			client.Close()
			db.Close()
			return nil, fmt.Errorf("failed to initialize payments: %w", err)
		}
		checkout = sc
	}

	gen := cfg.Generation
	tripPlanner := planner.NewPlanner(
		llm.NewRateLimitedGenerator(client, cfg.ProviderRPM),
		planner.WithLogger(logger.Named("planner")),
		planner.WithCurrency(cfg.Currency),
		planner.WithStageDelay(gen.StageDelay),
		planner.WithRetryPolicy(planner.RetryPolicy{
			MaxAttempts:       gen.MaxAttempts,
			Backoff:           planner.ExponentialBackoff(gen.BackoffBase),
			GenericRetryDelay: gen.GenericRetryDelay,
			Classify:          llm.Classify,
		}),
	)

	a := NewApp(cfg, tripPlanner, planner.NewItineraryRepository(db.SQL), metrics.NewStore(db.SQL), checkout, logger)
	a.db = db.SQL
	a.closers = []func() error{client.Close, db.Close}
	return a, nil
}

// Close releases the provider client and the database.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// DB returns the database opened by Open, or nil for apps built with NewApp.
func (a *App) DB() *sql.DB {
	return a.db
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// GenerateItinerary runs one generation, records its metrics and stores the
// itinerary for userID on success.
func (a *App) GenerateItinerary(
	ctx context.Context,
	userID string,
	params trip.Parameters,
	plan budget.Plan,
	onProgress planner.ProgressFunc,
) (planner.Result, error) {
	res, genErr := a.planner.Generate(ctx, params, plan, onProgress)

	// Metrics are written even when the caller has gone away.
	if err := a.metricsStore.RecordMeta(context.WithoutCancel(ctx), res.Meta); err != nil {
		a.logger.Warn("failed to record metrics", zap.String("agent", res.Meta.AgentName), zap.Error(err))
	}
	if genErr != nil {
		return res, genErr
	}

	if err := a.repo.Save(ctx, userID, params, res.Itinerary); err != nil {
		a.logger.Error("failed to save itinerary", zap.String("user_id", userID), zap.String("itinerary_id", res.Itinerary.ID), zap.Error(err))
		return res, fmt.Errorf("%w: %s: %w", ErrNotSaved, res.Itinerary.ID, err)
	}
	return res, nil
}

// History lists the most recent itineraries of a user.
func (a *App) History(ctx context.Context, userID string, limit int) ([]planner.StoredItinerary, error) {
	return a.repo.ListRecentByUserID(ctx, userID, limit)
}

// Itinerary loads a stored itinerary by ID.
func (a *App) Itinerary(ctx context.Context, id string) (*planner.StoredItinerary, error) {
	return a.repo.Get(ctx, id)
}

// Export writes a stored itinerary in the requested format.
func (a *App) Export(ctx context.Context, id string, f export.Format, w io.Writer) error {
	stored, err := a.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return export.Write(w, f, stored.Itinerary)
}

// PaymentsEnabled reports whether StartPayment can succeed.
func (a *App) PaymentsEnabled() bool {
	return a.checkout != nil
}

// StartPayment opens a checkout for the itinerary total. A pending checkout is
// looked up first so a paid session is recognized instead of duplicated.
func (a *App) StartPayment(ctx context.Context, userID, itineraryID string) (payment.Session, error) {
	if a.checkout == nil {
		return payment.Session{}, payment.ErrDisabled
	}

	stored, err := a.repo.Get(ctx, itineraryID)
	if err != nil {
		return payment.Session{}, err
	}
	if stored.UserID != userID {
		return payment.Session{}, ErrNotOwner
	}

	if stored.PaymentRef != "" {
		existing, err := a.checkout.GetCheckout(ctx, stored.PaymentRef)
		if err != nil {
			a.logger.Warn("failed to refresh checkout", zap.String("session_id", stored.PaymentRef), zap.Error(err))
		} else if existing.Status == payment.StatusPaid || existing.Status == payment.StatusOpen {
			if existing.Status == payment.StatusPaid && stored.PaymentStatus != planner.PaymentPaid {
				if err := a.repo.UpdatePayment(ctx, itineraryID, existing.ID, planner.PaymentPaid); err != nil {
					return payment.Session{}, err
				}
			}
			return existing, nil
		}
	}

	it := stored.Itinerary
	session, err := a.checkout.CreateCheckout(ctx, payment.Request{
		ItineraryID: it.ID,
		UserID:      userID,
		Title:       it.Title,
		Amount:      it.TotalCost,
		Currency:    it.Currency,
	})
	if err != nil {
		return payment.Session{}, err
	}
	if err := a.repo.UpdatePayment(ctx, itineraryID, session.ID, planner.PaymentPending); err != nil {
		return payment.Session{}, err
	}
	return session, nil
}

// UsageReport returns daily token usage for the last N days.
func (a *App) UsageReport(ctx context.Context, days int) ([]metrics.DailyUsage, error) {
	return a.metricsStore.GetDailyUsage(ctx, days)
}

// CleanupMetrics removes execution metrics older than N days.
func (a *App) CleanupMetrics(ctx context.Context, olderThanDays int) (int64, error) {
	return a.metricsStore.Cleanup(ctx, olderThanDays)
}
