package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kpiscribe/kpiscribe/internal/db"
	"github.com/kpiscribe/kpiscribe/internal/facts"
)

// Store persists narratives and their run records.
type Store struct {
	db *db.DB
}

// NewStore creates a new narrative sink store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// UpsertNarrative writes the narrative for its analysis period, replacing
// any previous narrative for that period.
func (s *Store) UpsertNarrative(ctx context.Context, n Narrative) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO narratives (analysis_period, narrative, generated_at, model, temperature, max_output_tokens)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(analysis_period) DO UPDATE SET
		   narrative = excluded.narrative,
		   generated_at = excluded.generated_at,
		   model = excluded.model,
		   temperature = excluded.temperature,
		   max_output_tokens = excluded.max_output_tokens`,
		string(n.AnalysisPeriod), n.Text, n.GeneratedAt.UTC(), n.Model, n.Temperature, n.MaxOutputTokens,
	)
	if err != nil {
		return fmt.Errorf("upserting narrative for %s: %w", n.AnalysisPeriod, err)
	}
	return nil
}

// GetNarrative retrieves the narrative for a period, or nil if none exists.
func (s *Store) GetNarrative(ctx context.Context, period facts.PeriodKey) (*Narrative, error) {
	var n Narrative
	var periodStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT analysis_period, narrative, generated_at, model, temperature, max_output_tokens
		 FROM narratives WHERE analysis_period = ?`, string(period),
	).Scan(&periodStr, &n.Text, &n.GeneratedAt, &n.Model, &n.Temperature, &n.MaxOutputTokens)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting narrative for %s: %w", period, err)
	}
	n.AnalysisPeriod = facts.PeriodKey(periodStr)
	return &n, nil
}

// ListNarratives returns all narratives, newest analysis period first.
func (s *Store) ListNarratives(ctx context.Context) ([]Narrative, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT analysis_period, narrative, generated_at, model, temperature, max_output_tokens
		 FROM narratives ORDER BY analysis_period DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing narratives: %w", err)
	}
	defer rows.Close()

	var out []Narrative
	for rows.Next() {
		var n Narrative
		var periodStr string
		if err := rows.Scan(&periodStr, &n.Text, &n.GeneratedAt, &n.Model, &n.Temperature, &n.MaxOutputTokens); err != nil {
			return nil, fmt.Errorf("scanning narrative: %w", err)
		}
		n.AnalysisPeriod = facts.PeriodKey(periodStr)
		out = append(out, n)
	}
	return out, rows.Err()
}

// StartRun records the beginning of a narrative request and returns its id.
func (s *Store) StartRun(ctx context.Context, period facts.PeriodKey) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO narrative_runs (id, analysis_period, state, started_at)
		 VALUES (?, ?, ?, ?)`,
		id, string(period), string(StatePending), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("starting run for %s: %w", period, err)
	}
	return id, nil
}

// UpdateRunState transitions a run to a new state.
func (s *Store) UpdateRunState(ctx context.Context, id string, state RunState, attempts int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE narrative_runs SET state = ?, attempts = ? WHERE id = ?`,
		string(state), attempts, id,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", id, err)
	}
	return nil
}

// FinishRun records the terminal state of a run.
func (s *Store) FinishRun(ctx context.Context, id string, state RunState, attempts int, lastErr string, inputTokens, outputTokens int, costUSD float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE narrative_runs
		 SET state = ?, attempts = ?, last_error = ?, input_tokens = ?, output_tokens = ?, estimated_cost_usd = ?, finished_at = ?
		 WHERE id = ?`,
		string(state), attempts, lastErr, inputTokens, outputTokens, costUSD, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	return nil
}

// GetRun retrieves a run by id, or nil if none exists.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, analysis_period, state, attempts, last_error, input_tokens, output_tokens, estimated_cost_usd, started_at, finished_at
		 FROM narrative_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, analysis_period, state, attempts, last_error, input_tokens, output_tokens, estimated_cost_usd, started_at, finished_at
		 FROM narrative_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var periodStr, stateStr string
	var finishedAt sql.NullTime
	err := row.Scan(&r.ID, &periodStr, &stateStr, &r.Attempts, &r.LastError,
		&r.InputTokens, &r.OutputTokens, &r.EstimatedCostUSD, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	r.AnalysisPeriod = facts.PeriodKey(periodStr)
	r.State = RunState(stateStr)
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return &r, nil
}
