package narrator

import (
	"fmt"

	"github.com/kpiscribe/kpiscribe/internal/facts"
)

// TransientRequestError is returned once the retry budget for transient
// provider failures (timeouts, rate limits, 5xx) is exhausted.
type TransientRequestError struct {
	Attempts int
	Err      error
}

func (e *TransientRequestError) Error() string {
	return fmt.Sprintf("narrator: transient failure after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientRequestError) Unwrap() error { return e.Err }

// AuthOrQuotaError is a fatal provider failure: bad credentials or an
// exhausted quota. Never retried; retrying would only burn the quota further.
type AuthOrQuotaError struct {
	Err error
}

func (e *AuthOrQuotaError) Error() string {
	return fmt.Sprintf("narrator: auth or quota failure: %v", e.Err)
}

func (e *AuthOrQuotaError) Unwrap() error { return e.Err }

// IncompleteNarrativeError reports a response that was empty or looked
// truncated even after the single validation retry.
type IncompleteNarrativeError struct {
	Period   facts.PeriodKey
	Attempts int
	Reason   string
}

func (e *IncompleteNarrativeError) Error() string {
	return fmt.Sprintf("narrator: incomplete narrative for %s after %d attempts: %s", e.Period, e.Attempts, e.Reason)
}
