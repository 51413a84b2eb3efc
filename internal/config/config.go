package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"

	defaultGeminiModel  = "gemini-1.5-flash"
	defaultGroqModel    = "llama-3.3-70b-versatile"
	defaultDatabasePath = "data/trip-planner.db"
	defaultCurrency     = "INR"
	defaultBudgetTotal  = 50000
	defaultProviderRPM  = 15
)

// GenerationConfig tunes the itinerary orchestrator.
type GenerationConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	StageDelay        time.Duration `yaml:"stage_delay"`
	GenericRetryDelay time.Duration `yaml:"generic_retry_delay"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
}

// Config holds the configuration for the application.
type Config struct {
	LLMProvider  string
	GeminiAPIKey string
	GeminiModel  string
	GroqAPIKey   string
	GroqModel    string
	ProviderRPM  int

	DatabasePath       string
	Currency           string
	DefaultBudgetTotal int64

	Generation GenerationConfig

	LogLevel  string
	LogFormat string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64

	// Stripe Config (payment step is disabled without a secret key)
	StripeSecretKey  string
	StripeSuccessURL string
	StripeCancelURL  string
}

// fileOverlay mirrors the optional YAML file pointed to by TRIP_PLANNER_CONFIG.
type fileOverlay struct {
	Generation GenerationConfig `yaml:"generation"`
	Budget     struct {
		DefaultTotal int64 `yaml:"default_total"`
	} `yaml:"budget"`
}

// DefaultGeneration returns the orchestrator tunables used when nothing overrides them.
func DefaultGeneration() GenerationConfig {
	return GenerationConfig{
		MaxAttempts:       3,
		StageDelay:        800 * time.Millisecond,
		GenericRetryDelay: time.Second,
		BackoffBase:       time.Second,
	}
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	if provider == "" {
		provider = ProviderGemini
	}

	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	groqAPIKey := os.Getenv("GROQ_API_KEY")

	switch provider {
	case ProviderGemini:
		if geminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	case ProviderGroq:
		if groqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
		}
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", provider)
	}

	rpm, err := intFromEnv("PROVIDER_RPM", defaultProviderRPM)
	if err != nil {
		return nil, err
	}

	budgetTotal, err := intFromEnv("DEFAULT_BUDGET_TOTAL", defaultBudgetTotal)
	if err != nil {
		return nil, err
	}
	if budgetTotal <= 0 {
		return nil, fmt.Errorf("DEFAULT_BUDGET_TOTAL must be positive, got %d", budgetTotal)
	}

	// Telegram Config (Optional for CLI, required for Bot)
	allowed, err := parseIDList(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS: %w", err)
	}
	var adminID int64
	if raw := strings.TrimSpace(os.Getenv("ADMIN_TELEGRAM_ID")); raw != "" {
		adminID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	cfg := &Config{
		LLMProvider:            provider,
		GeminiAPIKey:           geminiAPIKey,
		GeminiModel:            envOr("GEMINI_MODEL", defaultGeminiModel),
		GroqAPIKey:             groqAPIKey,
		GroqModel:              envOr("GROQ_MODEL", defaultGroqModel),
		ProviderRPM:            int(rpm),
		DatabasePath:           envOr("DATABASE_PATH", defaultDatabasePath),
		Currency:               strings.ToUpper(envOr("CURRENCY", defaultCurrency)),
		DefaultBudgetTotal:     budgetTotal,
		Generation:             DefaultGeneration(),
		LogLevel:               envOr("LOG_LEVEL", "info"),
		LogFormat:              envOr("LOG_FORMAT", "json"),
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowed,
		AdminTelegramID:        adminID,
		StripeSecretKey:        os.Getenv("STRIPE_SECRET_KEY"),
		StripeSuccessURL:       os.Getenv("STRIPE_SUCCESS_URL"),
		StripeCancelURL:        os.Getenv("STRIPE_CANCEL_URL"),
	}

	if path := strings.TrimSpace(os.Getenv("TRIP_PLANNER_CONFIG")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// PaymentsEnabled reports whether a payment gateway is configured.
func (c *Config) PaymentsEnabled() bool {
	return c.StripeSecretKey != ""
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	g := overlay.Generation
	if g.MaxAttempts < 0 {
		return fmt.Errorf("generation.max_attempts must not be negative")
	}
	if g.MaxAttempts > 0 {
		c.Generation.MaxAttempts = g.MaxAttempts
	}
	if g.StageDelay > 0 {
		c.Generation.StageDelay = g.StageDelay
	}
	if g.GenericRetryDelay > 0 {
		c.Generation.GenericRetryDelay = g.GenericRetryDelay
	}
	if g.BackoffBase > 0 {
		c.Generation.BackoffBase = g.BackoffBase
	}
	if overlay.Budget.DefaultTotal > 0 {
		c.DefaultBudgetTotal = overlay.Budget.DefaultTotal
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intFromEnv(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
