package facts

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ImportCSV loads KPI facts from a warehouse CSV export. The first column
// must be the period key (header "period_key" or "month"); every other
// column is a KPI. Cell kinds are inferred per cell: int, then float, then
// text. Returns the number of periods imported.
func (s *Store) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("reading csv header: %w", err)
	}
	if len(header) < 2 {
		return 0, fmt.Errorf("csv needs a period column and at least one KPI column")
	}

	periodCol := strings.TrimSpace(strings.ToLower(header[0]))
	if periodCol != "period_key" && periodCol != "month" {
		return 0, fmt.Errorf("first csv column must be period_key or month, got %q", header[0])
	}

	kpis := make([]string, len(header)-1)
	for i, name := range header[1:] {
		name = strings.TrimSpace(name)
		if name == "" {
			return 0, fmt.Errorf("csv column %d has an empty KPI name", i+2)
		}
		kpis[i] = name
	}

	imported := 0
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("reading csv line %d: %w", line+1, err)
		}
		line++

		period, err := ParsePeriodKey(strings.TrimSpace(row[0]))
		if err != nil {
			return imported, fmt.Errorf("csv line %d: %w", line, err)
		}

		for i, kpi := range kpis {
			v := ParseValue(strings.TrimSpace(row[i+1]))
			if err := s.Upsert(ctx, period, kpi, v); err != nil {
				return imported, fmt.Errorf("csv line %d: %w", line, err)
			}
		}
		imported++
	}

	return imported, nil
}
