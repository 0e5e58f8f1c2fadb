package config

import (
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .kpiscribe.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to kpiscribe! Let's configure narrative generation.")
	fmt.Println()

	// 1. Provider selection.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"anthropic", "openai", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)

	// 2. Model.
	modelPrompt := promptui.Prompt{
		Label:   "Model",
		Default: DefaultModel(provider),
	}
	model, err := modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	// 3. Company identity for the prompt template.
	namePrompt := promptui.Prompt{
		Label: "Company name (appears in the narrative prompt)",
	}
	companyName, err := namePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("company name: %w", err)
	}

	descPrompt := promptui.Prompt{
		Label: "One-line company description",
	}
	companyDesc, err := descPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("company description: %w", err)
	}

	// 4. Database path.
	dbPrompt := promptui.Prompt{
		Label:   "SQLite database path",
		Default: ".kpiscribe/kpiscribe.db",
	}
	dbPath, err := dbPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("db path: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Provider = provider
	cfg.Model = model
	cfg.DBPath = dbPath
	cfg.Prompt.CompanyName = companyName
	cfg.Prompt.CompanyDescription = companyDesc

	// Check for API key.
	envVar := APIKeyEnvVar(provider)
	if envVar != "" {
		if os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment before running kpiscribe generate.\n", envVar)
		}
	}

	configPath := ".kpiscribe.yml"
	if err := cfg.Save(configPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", configPath)
	return cfg, nil
}
