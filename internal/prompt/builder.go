// Package prompt assembles the bounded text payload sent to the
// text-generation provider: a rendered instruction template followed by the
// serialized KPI history.
package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kpiscribe/kpiscribe/internal/llm"
)

// separator sits between the rendered instructions and the history JSON.
const separator = "\n\n"

// placeholderPattern matches {{name}} placeholders in the template.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// UnresolvedPlaceholderError reports template placeholders that had no value.
// Only raised in strict mode; otherwise the placeholders stay verbatim.
type UnresolvedPlaceholderError struct {
	Names []string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("prompt: unresolved template placeholders: %s", strings.Join(e.Names, ", "))
}

// PromptTooLargeError reports a prompt that exceeds the input-token budget.
// The prompt is never truncated: cutting the history JSON would both corrupt
// it and bias the narrative toward an incomplete record.
type PromptTooLargeError struct {
	EstimatedTokens int
	BudgetTokens    int
}

func (e *PromptTooLargeError) Error() string {
	return fmt.Sprintf("prompt: estimated %d tokens exceeds budget of %d", e.EstimatedTokens, e.BudgetTokens)
}

// Options configures a Builder.
type Options struct {
	Template           string
	CompanyName        string
	CompanyDescription string
	// Strict makes leftover placeholders an error instead of passing them
	// through verbatim.
	Strict bool
	// TokenBudget bounds the estimated token count of the final prompt.
	TokenBudget int
}

// Builder renders instruction templates into bounded prompts.
type Builder struct {
	opts     Options
	replacer *strings.Replacer
}

// NewBuilder creates a Builder for the given options.
func NewBuilder(opts Options) *Builder {
	return &Builder{
		opts: opts,
		replacer: strings.NewReplacer(
			"{{company_name}}", opts.CompanyName,
			"{{company_description}}", opts.CompanyDescription,
		),
	}
}

// Build renders the template and appends the serialized history, enforcing
// the token budget. historyJSON must already be valid JSON.
func (b *Builder) Build(historyJSON string) (string, error) {
	rendered := b.replacer.Replace(b.opts.Template)

	if leftover := placeholderNames(rendered); len(leftover) > 0 && b.opts.Strict {
		return "", &UnresolvedPlaceholderError{Names: leftover}
	}

	p := rendered + separator + historyJSON

	if est := llm.EstimateTokens(p); est > b.opts.TokenBudget {
		return "", &PromptTooLargeError{EstimatedTokens: est, BudgetTokens: b.opts.TokenBudget}
	}

	return p, nil
}

// placeholderNames returns the distinct placeholder names left in s, sorted.
func placeholderNames(s string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}
