package sink

import (
	"time"

	"github.com/kpiscribe/kpiscribe/internal/facts"
)

// RunState tracks a narrative request through its lifecycle:
// pending -> in_flight -> {retrying -> in_flight, succeeded, failed}.
type RunState string

const (
	StatePending   RunState = "pending"
	StateInFlight  RunState = "in_flight"
	StateRetrying  RunState = "retrying"
	StateSucceeded RunState = "succeeded"
	StateFailed    RunState = "failed"
)

// Narrative is a generated dashboard narrative for one analysis period.
// Immutable once persisted; rerunning a period overwrites the whole row.
type Narrative struct {
	AnalysisPeriod  facts.PeriodKey `json:"analysis_period"`
	Text            string          `json:"text"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Model           string          `json:"model"`
	Temperature     float64         `json:"temperature"`
	MaxOutputTokens int             `json:"max_output_tokens"`
}

// Run is the audit record of one narrative request, kept for operator
// diagnosis: which period, how many attempts, what went wrong last.
type Run struct {
	ID               string          `json:"id"`
	AnalysisPeriod   facts.PeriodKey `json:"analysis_period"`
	State            RunState        `json:"state"`
	Attempts         int             `json:"attempts"`
	LastError        string          `json:"last_error,omitempty"`
	InputTokens      int             `json:"input_tokens"`
	OutputTokens     int             `json:"output_tokens"`
	EstimatedCostUSD float64         `json:"estimated_cost_usd"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
}
