package facts

import (
	"fmt"
	"time"
)

// PeriodKey identifies a monthly reporting period in YYYY-MM form.
// Keys compare chronologically as plain strings.
type PeriodKey string

// ParsePeriodKey validates a YYYY-MM string and returns it as a PeriodKey.
func ParsePeriodKey(s string) (PeriodKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return "", fmt.Errorf("invalid period key %q: want YYYY-MM", s)
	}
	// time.Parse accepts "2024-1"; require the canonical zero-padded form.
	if t.Format("2006-01") != s {
		return "", fmt.Errorf("invalid period key %q: want YYYY-MM", s)
	}
	return PeriodKey(s), nil
}

// PeriodOf returns the period containing the given instant.
func PeriodOf(t time.Time) PeriodKey {
	return PeriodKey(t.Format("2006-01"))
}

// Time returns the first instant of the period in UTC.
func (p PeriodKey) Time() time.Time {
	t, _ := time.Parse("2006-01", string(p))
	return t
}

// Next returns the following period.
func (p PeriodKey) Next() PeriodKey {
	return PeriodOf(p.Time().AddDate(0, 1, 0))
}

// Prev returns the preceding period.
func (p PeriodKey) Prev() PeriodKey {
	return PeriodOf(p.Time().AddDate(0, -1, 0))
}

// Before reports whether p is chronologically before other.
func (p PeriodKey) Before(other PeriodKey) bool {
	return string(p) < string(other)
}

// LatestClosed returns the most recent period considered closed at the given
// instant. With closingLagDays = 0 that is simply the previous calendar
// month; a positive lag keeps a month open for that many days into the next,
// so late-arriving warehouse loads can settle before a narrative is cut.
func LatestClosed(now time.Time, closingLagDays int) PeriodKey {
	shifted := now.AddDate(0, 0, -closingLagDays)
	return PeriodOf(shifted).Prev()
}

// PeriodRange returns all periods from `from` through `to` inclusive,
// in ascending order.
func PeriodRange(from, to PeriodKey) ([]PeriodKey, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid period range: %s is after %s", from, to)
	}
	var out []PeriodKey
	for p := from; !to.Before(p); p = p.Next() {
		out = append(out, p)
	}
	return out, nil
}
