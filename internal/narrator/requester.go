// Package narrator orchestrates one narrative request per analysis period:
// read KPI history, serialize it, build the prompt, call the text-generation
// provider with retries, validate the response, and persist the result.
package narrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/kpiscribe/kpiscribe/internal/config"
	"github.com/kpiscribe/kpiscribe/internal/facts"
	"github.com/kpiscribe/kpiscribe/internal/history"
	"github.com/kpiscribe/kpiscribe/internal/llm"
	"github.com/kpiscribe/kpiscribe/internal/prompt"
	"github.com/kpiscribe/kpiscribe/internal/sink"
)

// Params are the fixed sampling and policy parameters of a Requester.
type Params struct {
	Model             string
	Temperature       float64
	MaxOutputTokens   int
	MaxAttempts       int
	RequestTimeout    time.Duration
	NarrativeMaxChars int
	HistoryMonths     int
	// InitialBackoff seeds the exponential backoff between attempts.
	InitialBackoff time.Duration
}

// ParamsFromConfig derives requester parameters from the loaded config.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Model:             cfg.Model,
		Temperature:       cfg.Temperature,
		MaxOutputTokens:   cfg.MaxOutputTokens,
		MaxAttempts:       cfg.MaxAttempts,
		RequestTimeout:    time.Duration(cfg.RequestTimeoutSecs) * time.Second,
		NarrativeMaxChars: cfg.NarrativeMaxChars,
		HistoryMonths:     cfg.HistoryMonths,
		InitialBackoff:    2 * time.Second,
	}
}

// Result summarizes one successful narrative generation.
type Result struct {
	Period       facts.PeriodKey
	Text         string
	Attempts     int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	GeneratedAt  time.Time
}

// Requester runs the per-period narrative pipeline. Concurrent calls for the
// same analysis period collapse into a single in-flight request; each period
// is otherwise fully independent.
type Requester struct {
	log      *slog.Logger
	provider llm.Provider
	facts    *facts.Store
	builder  *prompt.Builder
	sink     *sink.Store
	params   Params
	clock    clockwork.Clock
	group    singleflight.Group
}

// New creates a Requester using the wall clock.
func New(log *slog.Logger, provider llm.Provider, factStore *facts.Store, builder *prompt.Builder, sinkStore *sink.Store, params Params) *Requester {
	return NewWithClock(log, provider, factStore, builder, sinkStore, params, clockwork.NewRealClock())
}

// NewWithClock creates a Requester with an injected clock for tests.
func NewWithClock(log *slog.Logger, provider llm.Provider, factStore *facts.Store, builder *prompt.Builder, sinkStore *sink.Store, params Params, clock clockwork.Clock) *Requester {
	if params.MaxAttempts < 1 {
		params.MaxAttempts = 1
	}
	if params.InitialBackoff <= 0 {
		params.InitialBackoff = 2 * time.Second
	}
	return &Requester{
		log:      log,
		provider: provider,
		facts:    factStore,
		builder:  builder,
		sink:     sinkStore,
		params:   params,
		clock:    clock,
	}
}

// Generate produces and persists the narrative for one analysis period.
// A concurrent duplicate for the same period waits for the in-flight request
// and shares its outcome rather than issuing a second billable call.
func (r *Requester) Generate(ctx context.Context, period facts.PeriodKey) (*Result, error) {
	v, err, _ := r.group.Do(string(period), func() (any, error) {
		return r.generate(ctx, period)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// callStats accumulates per-run accounting across attempts.
type callStats struct {
	attempts     int
	inputTokens  int
	outputTokens int
}

func (r *Requester) generate(ctx context.Context, period facts.PeriodKey) (*Result, error) {
	// Run bookkeeping must survive cancellation of the request itself.
	bctx := context.WithoutCancel(ctx)

	runID, err := r.sink.StartRun(bctx, period)
	if err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}

	res, stats, err := r.execute(ctx, bctx, period, runID)
	cost := llm.EstimateCost(r.params.Model, stats.inputTokens, stats.outputTokens)
	if err != nil {
		if ferr := r.sink.FinishRun(bctx, runID, sink.StateFailed, stats.attempts, err.Error(), stats.inputTokens, stats.outputTokens, cost); ferr != nil {
			r.log.Error("recording run failure", "analysis_period", period, "err", ferr)
		}
		r.log.Error("narrative generation failed",
			"analysis_period", period, "attempts", stats.attempts, "err", err)
		return nil, err
	}

	if ferr := r.sink.FinishRun(bctx, runID, sink.StateSucceeded, stats.attempts, "", stats.inputTokens, stats.outputTokens, cost); ferr != nil {
		r.log.Error("recording run success", "analysis_period", period, "err", ferr)
	}

	res.CostUSD = cost
	r.log.Info("narrative generated",
		"analysis_period", period, "attempts", stats.attempts,
		"input_tokens", stats.inputTokens, "output_tokens", stats.outputTokens)
	return res, nil
}

// execute runs the pipeline for a single period. All local validation
// happens before the first provider call: a bad history or oversized prompt
// never spends a billable request.
func (r *Requester) execute(ctx, bctx context.Context, period facts.PeriodKey, runID string) (*Result, callStats, error) {
	var stats callStats

	records, err := r.facts.ListHistory(ctx, period, r.params.HistoryMonths)
	if err != nil {
		return nil, stats, fmt.Errorf("reading kpi history: %w", err)
	}

	payload, err := history.Serialize(records)
	if err != nil {
		return nil, stats, err
	}

	promptText, err := r.builder.Build(payload)
	if err != nil {
		return nil, stats, err
	}

	req := llm.CompletionRequest{
		Model:         r.params.Model,
		Messages:      []llm.Message{{Role: llm.RoleUser, Content: promptText}},
		MaxTokens:     r.params.MaxOutputTokens,
		Temperature:   r.params.Temperature,
		Deterministic: true,
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.params.InitialBackoff

	softRetried := false
	for {
		stats.attempts++
		if uerr := r.sink.UpdateRunState(bctx, runID, sink.StateInFlight, stats.attempts); uerr != nil {
			r.log.Warn("updating run state", "analysis_period", period, "err", uerr)
		}

		cctx, cancel := context.WithTimeout(ctx, r.params.RequestTimeout)
		resp, err := r.provider.Complete(cctx, req)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				// Parent canceled or timed out; nothing is persisted.
				return nil, stats, ctx.Err()
			}
			switch classify(err) {
			case classAuth:
				return nil, stats, &AuthOrQuotaError{Err: err}
			case classFatal:
				return nil, stats, err
			}
			if stats.attempts >= r.params.MaxAttempts {
				return nil, stats, &TransientRequestError{Attempts: stats.attempts, Err: err}
			}
			r.log.Warn("transient failure, backing off",
				"analysis_period", period, "attempt", stats.attempts, "err", err)
			if werr := r.waitRetry(ctx, bctx, runID, period, stats.attempts, bo); werr != nil {
				return nil, stats, werr
			}
			continue
		}

		stats.inputTokens += resp.InputTokens
		stats.outputTokens += resp.OutputTokens

		text, reason, ok := validateNarrative(resp.Content, r.params.NarrativeMaxChars)
		if !ok {
			if softRetried {
				return nil, stats, &IncompleteNarrativeError{Period: period, Attempts: stats.attempts, Reason: reason}
			}
			softRetried = true
			r.log.Warn("invalid narrative, retrying once",
				"analysis_period", period, "attempt", stats.attempts, "reason", reason)
			if werr := r.waitRetry(ctx, bctx, runID, period, stats.attempts, bo); werr != nil {
				return nil, stats, werr
			}
			continue
		}

		generatedAt := r.clock.Now().UTC()
		n := sink.Narrative{
			AnalysisPeriod:  period,
			Text:            text,
			GeneratedAt:     generatedAt,
			Model:           r.params.Model,
			Temperature:     r.params.Temperature,
			MaxOutputTokens: r.params.MaxOutputTokens,
		}
		if err := r.sink.UpsertNarrative(ctx, n); err != nil {
			return nil, stats, fmt.Errorf("persisting narrative: %w", err)
		}

		return &Result{
			Period:       period,
			Text:         text,
			Attempts:     stats.attempts,
			InputTokens:  stats.inputTokens,
			OutputTokens: stats.outputTokens,
			GeneratedAt:  generatedAt,
		}, stats, nil
	}
}

// waitRetry marks the run as retrying and sleeps for the next backoff
// interval, honoring cancellation.
func (r *Requester) waitRetry(ctx, bctx context.Context, runID string, period facts.PeriodKey, attempts int, bo *backoff.ExponentialBackOff) error {
	if uerr := r.sink.UpdateRunState(bctx, runID, sink.StateRetrying, attempts); uerr != nil {
		r.log.Warn("updating run state", "analysis_period", period, "err", uerr)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.clock.After(bo.NextBackOff()):
		return nil
	}
}
