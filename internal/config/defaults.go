package config

// DefaultTemplate is the instruction half of the prompt. The serialized KPI
// history is appended after it, separated by a blank line.
const DefaultTemplate = `You are a business analyst writing a short narrative for the executive dashboard of {{company_name}}. {{company_description}}

You will receive a JSON array of monthly KPI snapshots, most recent month first. The first element is the month being analyzed; the rest are context. Write two to three short paragraphs: summarize the analyzed month's performance, then the notable trends across the history. Cite concrete figures and month-over-month changes from the data. Do not invent numbers that are not present, and do not mention JSON or field names.`

// defaultModels maps each provider to the model used when none is configured.
var defaultModels = map[ProviderType]string{
	ProviderAnthropic: "claude-sonnet-4-5-20250929",
	ProviderOpenAI:    "gpt-4o",
	ProviderOllama:    "llama3",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:           ProviderAnthropic,
		Model:              defaultModels[ProviderAnthropic],
		Temperature:        0.2,
		MaxOutputTokens:    1024,
		MaxAttempts:        3,
		RequestTimeoutSecs: 60,
		RateLimitRPM:       30,
		NarrativeMaxChars:  8000,
		HistoryMonths:      12,
		ClosingLagDays:     0,
		DBPath:             ".kpiscribe/kpiscribe.db",
		Schedule:           "",
		Serve: ServeConfig{
			Port: 8780,
		},
		Prompt: PromptConfig{
			Template:           DefaultTemplate,
			CompanyName:        "",
			CompanyDescription: "",
			Strict:             true,
			TokenBudget:        24000,
		},
	}
}

// DefaultModel returns the default model for the given provider.
// Falls back to the Anthropic default for unknown providers.
func DefaultModel(provider ProviderType) string {
	if m, ok := defaultModels[provider]; ok {
		return m
	}
	return defaultModels[ProviderAnthropic]
}
