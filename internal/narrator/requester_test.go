package narrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kpiscribe/kpiscribe/internal/db"
	"github.com/kpiscribe/kpiscribe/internal/facts"
	"github.com/kpiscribe/kpiscribe/internal/history"
	"github.com/kpiscribe/kpiscribe/internal/llm"
	"github.com/kpiscribe/kpiscribe/internal/prompt"
	"github.com/kpiscribe/kpiscribe/internal/sink"
)

const goodNarrative = "Revenue reached 100 in May, up from 90 in April. The trend over the quarter is steadily upward."

// step is one scripted provider outcome.
type step struct {
	content string
	err     error
}

// scriptedProvider returns its steps in order, repeating the last one, and
// counts calls. An optional per-call delay simulates a slow endpoint.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []step
	calls int
	delay time.Duration
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	i := p.calls
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	s := p.steps[i]
	p.calls++
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay):
		}
	}

	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{
		Content:      s.content,
		InputTokens:  100,
		OutputTokens: 50,
		Model:        req.Model,
		FinishReason: "stop",
	}, nil
}

func (p *scriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fixture struct {
	facts *facts.Store
	sink  *sink.Store
}

func testParams() Params {
	return Params{
		Model:             "gpt-4o",
		Temperature:       0.2,
		MaxOutputTokens:   1024,
		MaxAttempts:       3,
		RequestTimeout:    time.Second,
		NarrativeMaxChars: 8000,
		HistoryMonths:     12,
		InitialBackoff:    time.Millisecond,
	}
}

func testBuilder() *prompt.Builder {
	return prompt.NewBuilder(prompt.Options{
		Template:    "Summarize the KPI history for {{company_name}}.",
		CompanyName: "Acme",
		Strict:      true,
		TokenBudget: 100000,
	})
}

func newFixture(t *testing.T, seed bool) fixture {
	t.Helper()
	d, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	f := fixture{facts: facts.NewStore(d), sink: sink.NewStore(d)}
	if seed {
		ctx := context.Background()
		for period, revenue := range map[facts.PeriodKey]int64{
			"2024-03": 80, "2024-04": 90, "2024-05": 100,
		} {
			if err := f.facts.Upsert(ctx, period, "revenue", facts.IntValue(revenue)); err != nil {
				t.Fatal(err)
			}
		}
	}
	return f
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRequester(f fixture, provider llm.Provider, params Params) *Requester {
	return New(testLogger(), provider, f.facts, testBuilder(), f.sink, params)
}

func lastRun(t *testing.T, f fixture) sink.Run {
	t.Helper()
	runs, err := f.sink.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) == 0 {
		t.Fatal("expected at least one run record")
	}
	return runs[0]
}

func TestGenerateSuccess(t *testing.T) {
	f := newFixture(t, true)
	provider := &scriptedProvider{steps: []step{{content: goodNarrative}}}
	r := newRequester(f, provider, testParams())

	res, err := r.Generate(context.Background(), "2024-05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != goodNarrative {
		t.Errorf("text = %q", res.Text)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
	if provider.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.CallCount())
	}

	n, err := f.sink.GetNarrative(context.Background(), "2024-05")
	if err != nil {
		t.Fatal(err)
	}
	if n == nil || n.Text != goodNarrative {
		t.Errorf("persisted narrative = %+v", n)
	}
	if n.Model != "gpt-4o" || n.Temperature != 0.2 || n.MaxOutputTokens != 1024 {
		t.Errorf("model params not persisted: %+v", n)
	}

	run := lastRun(t, f)
	if run.State != sink.StateSucceeded || run.Attempts != 1 {
		t.Errorf("run = %+v", run)
	}
	if run.InputTokens != 100 || run.OutputTokens != 50 {
		t.Errorf("token accounting: %+v", run)
	}
}

func TestGenerateRetriesTimeoutsThenSucceeds(t *testing.T) {
	f := newFixture(t, true)
	provider := &scriptedProvider{steps: []step{
		{err: context.DeadlineExceeded},
		{err: context.DeadlineExceeded},
		{content: goodNarrative},
	}}
	r := newRequester(f, provider, testParams())

	res, err := r.Generate(context.Background(), "2024-05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
	if provider.CallCount() != 3 {
		t.Errorf("provider calls = %d, want 3", provider.CallCount())
	}

	run := lastRun(t, f)
	if run.State != sink.StateSucceeded || run.Attempts != 3 {
		t.Errorf("run = %+v", run)
	}
}

func TestGenerateTransientBudgetExhausted(t *testing.T) {
	f := newFixture(t, true)
	provider := &scriptedProvider{steps: []step{{err: errors.New("429 too many requests")}}}
	r := newRequester(f, provider, testParams())

	_, err := r.Generate(context.Background(), "2024-05")
	var transient *TransientRequestError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientRequestError, got %v", err)
	}
	if transient.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", transient.Attempts)
	}
	if provider.CallCount() != 3 {
		t.Errorf("provider calls = %d, want 3", provider.CallCount())
	}

	// Failure leaves the sink untouched.
	n, err := f.sink.GetNarrative(context.Background(), "2024-05")
	if err != nil {
		t.Fatal(err)
	}
	if n != nil {
		t.Errorf("no narrative may be persisted on failure, got %+v", n)
	}

	run := lastRun(t, f)
	if run.State != sink.StateFailed {
		t.Errorf("run state = %q, want failed", run.State)
	}
	if run.LastError == "" {
		t.Error("failed run must record its last error")
	}
}

func TestGenerateEmptyResponseRetriedExactlyOnce(t *testing.T) {
	f := newFixture(t, true)
	provider := &scriptedProvider{steps: []step{{content: ""}}}
	r := newRequester(f, provider, testParams())

	_, err := r.Generate(context.Background(), "2024-05")
	var incomplete *IncompleteNarrativeError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteNarrativeError, got %v", err)
	}
	if provider.CallCount() != 2 {
		t.Errorf("provider calls = %d, want 2 (one retry)", provider.CallCount())
	}
	if incomplete.Period != "2024-05" {
		t.Errorf("period = %q", incomplete.Period)
	}

	n, _ := f.sink.GetNarrative(context.Background(), "2024-05")
	if n != nil {
		t.Error("no narrative may be persisted after an incomplete response")
	}
}

func TestGenerateEmptyResponseThenValidSucceeds(t *testing.T) {
	f := newFixture(t, true)
	provider := &scriptedProvider{steps: []step{{content: ""}, {content: goodNarrative}}}
	r := newRequester(f, provider, testParams())

	res, err := r.Generate(context.Background(), "2024-05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
}

func TestGenerateAuthErrorNotRetried(t *testing.T) {
	f := newFixture(t, true)
	provider := &scriptedProvider{steps: []step{
		{err: errors.New("anthropic API error 401 (authentication_error): invalid x-api-key")},
	}}
	r := newRequester(f, provider, testParams())

	_, err := r.Generate(context.Background(), "2024-05")
	var auth *AuthOrQuotaError
	if !errors.As(err, &auth) {
		t.Fatalf("expected AuthOrQuotaError, got %v", err)
	}
	if provider.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry)", provider.CallCount())
	}
}

func TestGenerateConcurrentSamePeriodSingleCall(t *testing.T) {
	f := newFixture(t, true)
	provider := &scriptedProvider{
		steps: []step{{content: goodNarrative}},
		delay: 50 * time.Millisecond,
	}
	r := newRequester(f, provider, testParams())

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Generate(context.Background(), "2024-05")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d: %v", i, errs[i])
		}
		if results[i].Text != goodNarrative {
			t.Errorf("request %d text = %q", i, results[i].Text)
		}
	}
	if provider.CallCount() != 1 {
		t.Errorf("provider calls = %d, want exactly 1", provider.CallCount())
	}
}

func TestGenerateEmptyHistoryFailsBeforeCall(t *testing.T) {
	f := newFixture(t, false)
	provider := &scriptedProvider{steps: []step{{content: goodNarrative}}}
	r := newRequester(f, provider, testParams())

	_, err := r.Generate(context.Background(), "2024-05")
	if !errors.Is(err, history.ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}
	if provider.CallCount() != 0 {
		t.Errorf("validation errors must not spend a billable call, got %d", provider.CallCount())
	}
}

func TestGeneratePromptTooLargeFailsBeforeCall(t *testing.T) {
	f := newFixture(t, true)
	provider := &scriptedProvider{steps: []step{{content: goodNarrative}}}

	builder := prompt.NewBuilder(prompt.Options{
		Template:    "Summarize.",
		TokenBudget: 1,
	})
	r := New(testLogger(), provider, f.facts, builder, f.sink, testParams())

	_, err := r.Generate(context.Background(), "2024-05")
	var tooLarge *prompt.PromptTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected PromptTooLargeError, got %v", err)
	}
	if provider.CallCount() != 0 {
		t.Errorf("oversized prompts must not be submitted, got %d calls", provider.CallCount())
	}
}

func TestGenerateBackoffUsesInjectedClock(t *testing.T) {
	f := newFixture(t, true)
	provider := &scriptedProvider{steps: []step{
		{err: errors.New("model overloaded")},
		{content: goodNarrative},
	}}

	fc := clockwork.NewFakeClock()
	params := testParams()
	params.InitialBackoff = 2 * time.Second
	r := NewWithClock(testLogger(), provider, f.facts, testBuilder(), f.sink, params, fc)

	done := make(chan struct{})
	var res *Result
	var err error
	go func() {
		res, err = r.Generate(context.Background(), "2024-05")
		close(done)
	}()

	// The requester must be waiting on the backoff timer, not busy-looping.
	fc.BlockUntil(1)
	fc.Advance(10 * time.Second)
	<-done

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
	if provider.CallCount() != 2 {
		t.Errorf("provider calls = %d, want 2", provider.CallCount())
	}
}

func TestGenerateHonorsCancellation(t *testing.T) {
	f := newFixture(t, true)
	provider := &scriptedProvider{
		steps: []step{{content: goodNarrative}},
		delay: time.Minute,
	}
	params := testParams()
	params.RequestTimeout = 10 * time.Minute
	r := newRequester(f, provider, params)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Generate(ctx, "2024-05")
	if err == nil {
		t.Fatal("expected error on cancellation")
	}

	// Cancellation must not persist a partial narrative.
	n, _ := f.sink.GetNarrative(context.Background(), "2024-05")
	if n != nil {
		t.Errorf("narrative persisted despite cancellation: %+v", n)
	}
}
