package config

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderOllama    ProviderType = "ollama"
)

// PromptConfig controls how the instruction template is rendered and bounded.
type PromptConfig struct {
	Template           string `yaml:"template" koanf:"template"`
	CompanyName        string `yaml:"company_name" koanf:"company_name"`
	CompanyDescription string `yaml:"company_description" koanf:"company_description"`
	Strict             bool   `yaml:"strict" koanf:"strict"`
	TokenBudget        int    `yaml:"token_budget" koanf:"token_budget"`
}

// Config is the top-level kpiscribe configuration, corresponding to .kpiscribe.yml.
type Config struct {
	Provider        ProviderType `yaml:"provider" koanf:"provider"`
	Model           string       `yaml:"model" koanf:"model"`
	Temperature     float64      `yaml:"temperature" koanf:"temperature"`
	MaxOutputTokens int          `yaml:"max_output_tokens" koanf:"max_output_tokens"`

	// Retry and timeout behaviour of the narrative requester.
	MaxAttempts        int `yaml:"max_attempts" koanf:"max_attempts"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs" koanf:"request_timeout_secs"`
	RateLimitRPM       int `yaml:"rate_limit_rpm" koanf:"rate_limit_rpm"`

	// NarrativeMaxChars is the upper bound on an accepted narrative.
	// Responses longer than this are treated as runaway output.
	NarrativeMaxChars int `yaml:"narrative_max_chars" koanf:"narrative_max_chars"`

	// HistoryMonths is how many closed periods feed a single narrative.
	HistoryMonths int `yaml:"history_months" koanf:"history_months"`

	// ClosingLagDays shifts the period-exclusion boundary: a month only
	// counts as closed once this many days of the next month have passed.
	ClosingLagDays int `yaml:"closing_lag_days" koanf:"closing_lag_days"`

	DBPath   string       `yaml:"db_path" koanf:"db_path"`
	Schedule string       `yaml:"schedule" koanf:"schedule"`
	Serve    ServeConfig  `yaml:"serve" koanf:"serve"`
	Prompt   PromptConfig `yaml:"prompt" koanf:"prompt"`
}

// ServeConfig holds settings for the read-only narrative API.
type ServeConfig struct {
	Port     int  `yaml:"port" koanf:"port"`
	AllowAll bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}
