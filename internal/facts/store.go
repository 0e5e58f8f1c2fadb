package facts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kpiscribe/kpiscribe/internal/db"
)

// Store reads and loads KPI facts in SQLite. The fact table is append-only
// from the tool's point of view: the aggregation pipeline owns its content.
type Store struct {
	db *db.DB
}

// NewStore creates a new fact store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Upsert writes one KPI observation for a period, replacing any prior value.
func (s *Store) Upsert(ctx context.Context, period PeriodKey, kpi string, v Value) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kpi_facts (period_key, kpi_name, kind, value)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(period_key, kpi_name) DO UPDATE SET kind = excluded.kind, value = excluded.value`,
		string(period), kpi, string(v.Kind), v.Encode(),
	)
	if err != nil {
		return fmt.Errorf("upserting fact %s/%s: %w", period, kpi, err)
	}
	return nil
}

// ListHistory returns at most `months` period records with period keys up to
// and including `through`, newest first. Every returned record must carry the
// identical set of KPI names; a mismatch means the warehouse load for some
// month is partial and the history is not safe to narrate.
func (s *Store) ListHistory(ctx context.Context, through PeriodKey, months int) ([]PeriodRecord, error) {
	if months < 1 {
		return nil, fmt.Errorf("months must be at least 1")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT period_key, kpi_name, kind, value
		 FROM kpi_facts
		 WHERE period_key <= ?
		 ORDER BY period_key DESC, kpi_name ASC`,
		string(through),
	)
	if err != nil {
		return nil, fmt.Errorf("querying kpi facts: %w", err)
	}
	defer rows.Close()

	var records []PeriodRecord
	var current *PeriodRecord
	for rows.Next() {
		var period, kpi, kind, raw string
		if err := rows.Scan(&period, &kpi, &kind, &raw); err != nil {
			return nil, fmt.Errorf("scanning kpi fact: %w", err)
		}

		if current == nil || current.PeriodKey != PeriodKey(period) {
			if len(records) == months {
				break
			}
			records = append(records, PeriodRecord{
				PeriodKey: PeriodKey(period),
				Values:    make(map[string]Value),
			})
			current = &records[len(records)-1]
		}

		v, err := DecodeValue(ValueKind(kind), raw)
		if err != nil {
			return nil, fmt.Errorf("fact %s/%s: %w", period, kpi, err)
		}
		current.Values[kpi] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading kpi facts: %w", err)
	}

	if err := checkUniformColumns(records); err != nil {
		return nil, err
	}

	return records, nil
}

// Periods returns all distinct period keys present in the fact table,
// ascending.
func (s *Store) Periods(ctx context.Context) ([]PeriodKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT period_key FROM kpi_facts ORDER BY period_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying periods: %w", err)
	}
	defer rows.Close()

	var out []PeriodKey
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning period: %w", err)
		}
		out = append(out, PeriodKey(p))
	}
	return out, rows.Err()
}

// checkUniformColumns verifies that all records share one KPI name set.
func checkUniformColumns(records []PeriodRecord) error {
	if len(records) < 2 {
		return nil
	}

	want := kpiNames(records[0])
	for _, r := range records[1:] {
		got := kpiNames(r)
		if !equalStrings(want, got) {
			return fmt.Errorf("kpi columns differ between periods %s [%s] and %s [%s]",
				records[0].PeriodKey, strings.Join(want, ","),
				r.PeriodKey, strings.Join(got, ","))
		}
	}
	return nil
}

func kpiNames(r PeriodRecord) []string {
	names := make([]string, 0, len(r.Values))
	for name := range r.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
