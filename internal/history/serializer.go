// Package history turns an ordered set of KPI period records into the
// deterministic JSON array fed to the narrative prompt.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kpiscribe/kpiscribe/internal/facts"
)

// ErrEmptyHistory is returned when there are no period records to serialize.
// The caller is responsible for excluding the in-progress period before
// calling Serialize; an empty result usually means the fact table has no
// closed periods yet.
var ErrEmptyHistory = errors.New("history: no period records to serialize")

// DuplicatePeriodError reports a period key that appears more than once.
type DuplicatePeriodError struct {
	Key facts.PeriodKey
}

func (e *DuplicatePeriodError) Error() string {
	return fmt.Sprintf("history: duplicate period key %s", e.Key)
}

// Serialize renders the records as a JSON array string, newest period first.
// Each element carries period_key followed by the record's KPI fields in
// sorted name order, so identical input always produces byte-identical
// output. Numeric values stay numeric; they are never quoted.
func Serialize(records []facts.PeriodRecord) (string, error) {
	if len(records) == 0 {
		return "", ErrEmptyHistory
	}

	ordered := make([]facts.PeriodRecord, len(records))
	copy(ordered, records)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[j].PeriodKey.Before(ordered[i].PeriodKey)
	})

	for i := 1; i < len(ordered); i++ {
		if ordered[i].PeriodKey == ordered[i-1].PeriodKey {
			return "", &DuplicatePeriodError{Key: ordered[i].PeriodKey}
		}
	}

	var b strings.Builder
	b.WriteByte('[')
	for i, rec := range ordered {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := writeRecord(&b, rec); err != nil {
			return "", err
		}
	}
	b.WriteByte(']')
	return b.String(), nil
}

func writeRecord(b *strings.Builder, rec facts.PeriodRecord) error {
	b.WriteString(`{"period_key":`)
	if err := writeJSONString(b, string(rec.PeriodKey)); err != nil {
		return err
	}

	names := make([]string, 0, len(rec.Values))
	for name := range rec.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		b.WriteByte(',')
		if err := writeJSONString(b, name); err != nil {
			return err
		}
		b.WriteByte(':')
		if err := writeValue(b, rec.Values[name]); err != nil {
			return fmt.Errorf("history: period %s field %s: %w", rec.PeriodKey, name, err)
		}
	}
	b.WriteByte('}')
	return nil
}

func writeValue(b *strings.Builder, v facts.Value) error {
	switch v.Kind {
	case facts.KindInt, facts.KindFloat:
		// Encode already produces a valid JSON number for both kinds.
		b.WriteString(v.Encode())
		return nil
	case facts.KindText:
		return writeJSONString(b, v.Text)
	default:
		return fmt.Errorf("unknown value kind %q", v.Kind)
	}
}

func writeJSONString(b *strings.Builder, s string) error {
	out, err := json.Marshal(s)
	if err != nil {
		return err
	}
	b.Write(out)
	return nil
}
