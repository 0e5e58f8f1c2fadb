package history

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kpiscribe/kpiscribe/internal/facts"
)

func rec(period string, values map[string]facts.Value) facts.PeriodRecord {
	return facts.PeriodRecord{PeriodKey: facts.PeriodKey(period), Values: values}
}

func TestSerializeScenario(t *testing.T) {
	records := []facts.PeriodRecord{
		rec("2024-05", map[string]facts.Value{"revenue": facts.IntValue(100)}),
		rec("2024-04", map[string]facts.Value{"revenue": facts.IntValue(90)}),
		rec("2024-03", map[string]facts.Value{"revenue": facts.IntValue(80)}),
	}

	got, err := Serialize(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `[{"period_key":"2024-05","revenue":100},{"period_key":"2024-04","revenue":90},{"period_key":"2024-03","revenue":80}]`
	if got != want {
		t.Errorf("serialized output:\n got %s\nwant %s", got, want)
	}
}

func TestSerializeSortsDescending(t *testing.T) {
	// Input deliberately shuffled.
	records := []facts.PeriodRecord{
		rec("2024-03", map[string]facts.Value{"revenue": facts.IntValue(80)}),
		rec("2024-05", map[string]facts.Value{"revenue": facts.IntValue(100)}),
		rec("2024-04", map[string]facts.Value{"revenue": facts.IntValue(90)}),
	}

	got, err := Serialize(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed []map[string]any
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(parsed) != 3 {
		t.Fatalf("got %d elements, want 3", len(parsed))
	}
	prev := ""
	for i, el := range parsed {
		key, _ := el["period_key"].(string)
		if i > 0 && key >= prev {
			t.Errorf("element %d (%s) not descending after %s", i, key, prev)
		}
		prev = key
	}
}

func TestSerializeRoundTripsAsJSON(t *testing.T) {
	records := []facts.PeriodRecord{
		rec("2024-05", map[string]facts.Value{
			"revenue":    facts.IntValue(100),
			"churn":      facts.FloatValue(0.025),
			"top_market": facts.TextValue(`US "west"`),
		}),
	}

	got, err := Serialize(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed []map[string]any
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, got)
	}

	el := parsed[0]
	if el["revenue"] != float64(100) {
		t.Errorf("revenue parsed as %v (%T), want 100", el["revenue"], el["revenue"])
	}
	if el["churn"] != 0.025 {
		t.Errorf("churn parsed as %v, want 0.025", el["churn"])
	}
	if el["top_market"] != `US "west"` {
		t.Errorf("top_market parsed as %v", el["top_market"])
	}
}

func TestSerializeNumbersAreNotQuoted(t *testing.T) {
	records := []facts.PeriodRecord{
		rec("2024-05", map[string]facts.Value{
			"revenue": facts.IntValue(100),
			"churn":   facts.FloatValue(0.5),
		}),
	}

	got, err := Serialize(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, `"100"`) || strings.Contains(got, `"0.5"`) {
		t.Errorf("numeric values must not be quoted: %s", got)
	}
	// Integers keep their integer form.
	if !strings.Contains(got, `"revenue":100`) {
		t.Errorf("expected integer rendering of revenue: %s", got)
	}
}

func TestSerializeIdempotent(t *testing.T) {
	records := []facts.PeriodRecord{
		rec("2024-05", map[string]facts.Value{
			"revenue": facts.IntValue(100),
			"churn":   facts.FloatValue(0.02),
			"region":  facts.TextValue("EMEA"),
		}),
		rec("2024-04", map[string]facts.Value{
			"revenue": facts.IntValue(90),
			"churn":   facts.FloatValue(0.03),
			"region":  facts.TextValue("EMEA"),
		}),
	}

	first, err := Serialize(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Serialize(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("serialization not byte-identical:\n%s\n%s", first, second)
	}
}

func TestSerializeEmpty(t *testing.T) {
	_, err := Serialize(nil)
	if !errors.Is(err, ErrEmptyHistory) {
		t.Errorf("expected ErrEmptyHistory, got %v", err)
	}
}

func TestSerializeDuplicatePeriod(t *testing.T) {
	records := []facts.PeriodRecord{
		rec("2024-05", map[string]facts.Value{"revenue": facts.IntValue(100)}),
		rec("2024-05", map[string]facts.Value{"revenue": facts.IntValue(90)}),
	}

	_, err := Serialize(records)
	var dup *DuplicatePeriodError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicatePeriodError, got %v", err)
	}
	if dup.Key != "2024-05" {
		t.Errorf("duplicate key = %q, want 2024-05", dup.Key)
	}
}

func TestSerializeDoesNotMutateInput(t *testing.T) {
	records := []facts.PeriodRecord{
		rec("2024-03", map[string]facts.Value{"revenue": facts.IntValue(80)}),
		rec("2024-05", map[string]facts.Value{"revenue": facts.IntValue(100)}),
	}

	if _, err := Serialize(records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].PeriodKey != "2024-03" || records[1].PeriodKey != "2024-05" {
		t.Error("input slice order was mutated")
	}
}
