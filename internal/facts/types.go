package facts

import (
	"fmt"
	"strconv"
)

// ValueKind discriminates how a KPI value is stored and serialized.
type ValueKind string

const (
	KindInt   ValueKind = "int"
	KindFloat ValueKind = "float"
	KindText  ValueKind = "text"
)

// Value is a single KPI observation. Integers, floats, and text are kept
// distinct so that serialization preserves the warehouse's types exactly:
// numbers are never quoted and integers never grow a decimal point.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Text  string
}

// IntValue returns an integer KPI value.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// FloatValue returns a floating-point KPI value.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// TextValue returns a string KPI value.
func TextValue(v string) Value { return Value{Kind: KindText, Text: v} }

// ParseValue infers the kind of a raw cell: int, then float, then text.
func ParseValue(raw string) Value {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return IntValue(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return FloatValue(f)
	}
	return TextValue(raw)
}

// Encode returns the canonical string form stored in the database.
func (v Value) Encode() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	default:
		return v.Text
	}
}

// DecodeValue reconstructs a Value from its stored kind and string form.
func DecodeValue(kind ValueKind, raw string) (Value, error) {
	switch kind {
	case KindInt:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decoding int value %q: %w", raw, err)
		}
		return IntValue(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decoding float value %q: %w", raw, err)
		}
		return FloatValue(f), nil
	case KindText:
		return TextValue(raw), nil
	default:
		return Value{}, fmt.Errorf("unknown value kind %q", kind)
	}
}

// PeriodRecord is one row of KPI facts: a period key plus the named KPI
// values observed for that period. Records are immutable once read.
type PeriodRecord struct {
	PeriodKey PeriodKey
	Values    map[string]Value
}
