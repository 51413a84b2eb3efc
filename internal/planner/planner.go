package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-trip-planner/internal/budget"
	"ai-trip-planner/internal/itinerary"
	"ai-trip-planner/internal/llm"
	"ai-trip-planner/internal/shared"
	"ai-trip-planner/internal/trip"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const agentName = "ItineraryPlanner"

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Result is the outcome of Generate. Session and Meta are filled even when
// generation fails; Itinerary is nil in that case.
type Result struct {
	Itinerary *itinerary.Itinerary
	Session   Session
	Meta      shared.AgentMeta
}

// Planner turns trip parameters and a budget plan into an itinerary.
// It is safe for concurrent use; every Generate call owns its session.
type Planner struct {
	textGen    llm.TextGenerator
	policy     RetryPolicy
	stageDelay time.Duration
	currency   string
	sleep      SleepFunc
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Planner.
type Option func(*Planner)

func WithLogger(l *zap.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(p *Planner) { p.policy = policy.withDefaults() }
}

// WithStageDelay sets the pause between cosmetic progress stages.
func WithStageDelay(d time.Duration) Option {
	return func(p *Planner) {
		if d >= 0 {
			p.stageDelay = d
		}
	}
}

func WithCurrency(currency string) Option {
	return func(p *Planner) {
		if currency != "" {
			p.currency = currency
		}
	}
}

// WithSleep replaces the wait used for stage pacing and retry backoff.
func WithSleep(fn SleepFunc) Option {
	return func(p *Planner) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPlanner creates a new Planner instance.
func NewPlanner(textGen llm.TextGenerator, opts ...Option) *Planner {
	p := &Planner{
		textGen:    textGen,
		policy:     DefaultRetryPolicy(),
		stageDelay: 800 * time.Millisecond,
		currency:   "INR",
		sleep:      sleepContext,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate runs one generation session. onProgress may be nil.
//
// Progress percentages never decrease and reach 100 before a successful
// return. Errors are *GenerationError values whose kind is one of the Err*
// sentinels of this package.
func (p *Planner) Generate(ctx context.Context, params trip.Parameters, plan budget.Plan, onProgress ProgressFunc) (Result, error) {
	start := p.now()
	id := uuid.NewString()
	r := &run{
		planner:    p,
		session:    newSession(id, start),
		onProgress: onProgress,
		logger:     p.logger.With(zap.String("session_id", id)),
	}

	it, err := r.execute(ctx, params, plan)

	res := Result{
		Itinerary: it,
		Session:   r.session.snapshot(),
		Meta: shared.AgentMeta{
			AgentName: agentName,
			Usage:     r.usage,
			Latency:   p.now().Sub(start),
			Attempts:  r.session.Attempt,
			Succeeded: err == nil,
		},
	}
	if err != nil {
		r.logger.Error("itinerary generation failed",
			zap.String("state", string(res.Session.State)),
			zap.Int("attempts", res.Meta.Attempts),
			zap.Error(err))
		return res, err
	}

	r.logger.Info("itinerary generated",
		zap.String("destination", it.Destination),
		zap.Int("days", len(it.Days)),
		zap.Int64("total_cost", it.TotalCost),
		zap.Int("attempts", res.Meta.Attempts),
		zap.Duration("latency", res.Meta.Latency))
	return res, nil
}

// run holds the mutable state of a single Generate call.
type run struct {
	planner    *Planner
	session    *Session
	onProgress ProgressFunc
	logger     *zap.Logger
	usage      shared.TokenUsage
}

func (r *run) execute(ctx context.Context, params trip.Parameters, plan budget.Plan) (*itinerary.Itinerary, error) {
	p := r.planner

	r.session.transition(StateValidating)
	r.emit("Validating trip details")
	if err := checkInput(params, plan); err != nil {
		r.session.transition(StateRejected)
		r.emit(err.Error())
		return nil, &GenerationError{Kind: ErrInvalidInput, Err: err}
	}

	prompt, err := buildItineraryPrompt(params, plan, p.currency)
	if err != nil {
		return nil, r.fail(StateFailed, &GenerationError{Kind: ErrGenerationFailed, Err: err})
	}

	var resp llm.ContentResponse
	for i, stage := range Stages {
		if i > 0 {
			if err := p.sleep(ctx, p.stageDelay); err != nil {
				return nil, r.cancelled(err)
			}
		} else if err := ctx.Err(); err != nil {
			return nil, r.cancelled(err)
		}

		r.enterStage(i, stage)
		if i == generationStage {
			resp, err = r.callWithRetry(ctx, prompt, i)
			if err != nil {
				return nil, err
			}
		}
	}

	r.session.transition(StateNormalizing)
	r.emit("Finalizing your itinerary")
	raw, err := itinerary.Decode(resp.Content)
	if err != nil {
		return nil, r.fail(StateFailed, &GenerationError{Kind: ErrMalformedResponse, Attempts: r.session.Attempt, Err: err})
	}
	it, err := itinerary.Normalize(raw, itinerary.NormalizeInput{
		Destination:  params.Destination,
		ExpectedDays: params.Days(),
		StartDate:    params.StartDate,
		Currency:     p.currency,
		Plan:         plan,
	})
	if err != nil {
		return nil, r.fail(StateFailed, &GenerationError{Kind: ErrMalformedResponse, Attempts: r.session.Attempt, Err: err})
	}
	it.ID = r.session.ID

	r.session.transition(StateSucceeded)
	r.emit("Your itinerary is ready")
	return it, nil
}

func (r *run) callWithRetry(ctx context.Context, prompt string, idx int) (llm.ContentResponse, error) {
	p := r.planner
	policy := p.policy
	genericRetried := false

	for attempt := 1; ; attempt++ {
		r.session.Attempt = attempt
		resp, err := p.textGen.GenerateContent(ctx, prompt)
		r.usage = r.usage.Add(resp.Usage)
		if err == nil {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return llm.ContentResponse{}, r.cancelled(ctxErr)
		}

		kind := policy.Classify(err)
		r.logger.Debug("provider call failed",
			zap.Int("attempt", attempt),
			zap.Stringer("kind", kind),
			zap.Error(err))

		var delay time.Duration
		switch kind {
		case llm.FailureAuth:
			return llm.ContentResponse{}, r.fail(StateFailed, &GenerationError{Kind: ErrAuthentication, Attempts: attempt, Err: err})
		case llm.FailureNotFound:
			return llm.ContentResponse{}, r.fail(StateFailed, &GenerationError{Kind: ErrUnsupportedModel, Attempts: attempt, Err: err})
		case llm.FailureQuota:
			if attempt >= policy.MaxAttempts {
				return llm.ContentResponse{}, r.fail(StateFailed, &GenerationError{Kind: ErrServiceUnavailable, Attempts: attempt, Err: err})
			}
			delay = policy.Backoff(attempt)
		default:
			// MaxAttempts caps every call, so a generic failure on the last
			// allowed call is not retried even if its one retry is unused.
			if genericRetried || attempt >= policy.MaxAttempts {
				return llm.ContentResponse{}, r.fail(StateFailed, &GenerationError{Kind: ErrGenerationFailed, Attempts: attempt, Err: err})
			}
			genericRetried = true
			delay = policy.GenericRetryDelay
		}

		r.logger.Warn("retrying provider call",
			zap.Int("next_attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Stringer("kind", kind))
		r.session.transition(StateRetrying)
		r.emit(fmt.Sprintf("Retrying generation (attempt %d of %d)", attempt+1, policy.MaxAttempts))
		if err := p.sleep(ctx, delay); err != nil {
			return llm.ContentResponse{}, r.cancelled(err)
		}
		r.session.transition(StageState(idx + 1))
	}
}

func (r *run) enterStage(idx int, stage Stage) {
	r.session.transition(StageState(idx + 1))
	r.session.advance(stage.Percent)
	r.logger.Debug("stage entered", zap.Int("stage", idx+1), zap.Int("percent", r.session.Progress))
	r.emit(stage.Label)
}

func (r *run) emit(label string) {
	r.session.Stage = label
	if r.onProgress == nil {
		return
	}
	r.onProgress(Progress{
		SessionID:   r.session.ID,
		State:       r.session.State,
		Stage:       label,
		Percent:     r.session.Progress,
		Attempt:     r.session.Attempt,
		MaxAttempts: r.planner.policy.MaxAttempts,
	})
}

func (r *run) fail(state State, err *GenerationError) error {
	r.session.transition(state)
	r.emit(err.Kind.Error())
	return err
}

func (r *run) cancelled(cause error) error {
	return r.fail(StateCancelled, &GenerationError{Kind: ErrCancelled, Attempts: r.session.Attempt, Err: cause})
}

func checkInput(params trip.Parameters, plan budget.Plan) error {
	if err := params.CheckRequired(); err != nil {
		return err
	}
	if plan.Total <= 0 {
		return errors.New("budget total must be positive")
	}
	if !plan.IsComplete() {
		return fmt.Errorf("budget allocation must total 100%%, got %d%%", plan.Breakdown.Sum())
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
