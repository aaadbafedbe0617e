package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"investly/internal/domain"
)

// ConfigFileEnv names the optional YAML file applied before the environment
const ConfigFileEnv = "INVESTLY_CONFIG"

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Binance   BinanceConfig   `yaml:"binance"`
	Assistant AssistantConfig `yaml:"assistant"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

// DatabaseConfig selects the message store. An empty URL uses the BoltDB file.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	BoltPath string `yaml:"bolt_path"`
	MaxConns int32  `yaml:"max_conns"`
}

// OpenAIConfig holds assistant provider credentials
type OpenAIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	AssistantID string        `yaml:"assistant_id"`
	AdviceModel string        `yaml:"advice_model"`
	Timeout     time.Duration `yaml:"timeout"`
}

// BinanceConfig holds exchange credentials
type BinanceConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	APISecret         string        `yaml:"api_secret"`
	QuoteAsset        string        `yaml:"quote_asset"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// AssistantConfig holds the polling budgets of a conversation turn
type AssistantConfig struct {
	PollAttempts    int           `yaml:"poll_attempts"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ExtractAttempts int           `yaml:"extract_attempts"`
	ExtractInterval time.Duration `yaml:"extract_interval"`
	MaxToolRounds   int           `yaml:"max_tool_rounds"`
	MaxParallel     int           `yaml:"max_parallel"`
}

// SchedulerConfig holds cron specs
type SchedulerConfig struct {
	StepSizeRefresh string `yaml:"step_size_refresh"`
}

func defaults() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", Env: "development"},
		Database: DatabaseConfig{BoltPath: "data/messages.bolt"},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			AdviceModel: "gpt-4o-mini",
			Timeout:     30 * time.Second,
		},
		Binance: BinanceConfig{
			BaseURL:           "https://api.binance.com",
			QuoteAsset:        "USDT",
			RequestsPerSecond: 10,
			Timeout:           10 * time.Second,
		},
		Assistant: AssistantConfig{
			PollAttempts:    10,
			PollInterval:    5 * time.Second,
			ExtractAttempts: 5,
			ExtractInterval: 2 * time.Second,
			MaxToolRounds:   5,
			MaxParallel:     4,
		},
		Scheduler: SchedulerConfig{StepSizeRefresh: "0 0 * * * *"},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by INVESTLY_CONFIG, then environment variables
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.Env = getEnv("GO_ENV", cfg.Server.Env)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.BoltPath = getEnv("BOLT_PATH", cfg.Database.BoltPath)

	cfg.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.AssistantID = getEnv("OPENAI_ASSISTANT_ID", cfg.OpenAI.AssistantID)
	cfg.OpenAI.AdviceModel = getEnv("OPENAI_ADVICE_MODEL", cfg.OpenAI.AdviceModel)

	cfg.Binance.BaseURL = getEnv("BINANCE_BASE_URL", cfg.Binance.BaseURL)
	cfg.Binance.APIKey = getEnv("BINANCE_API_KEY", cfg.Binance.APIKey)
	cfg.Binance.APISecret = getEnv("BINANCE_API_SECRET", cfg.Binance.APISecret)
	cfg.Binance.QuoteAsset = strings.ToUpper(getEnv("BINANCE_QUOTE_ASSET", cfg.Binance.QuoteAsset))

	var err error
	if cfg.Assistant.PollAttempts, err = getEnvInt("ASSISTANT_POLL_ATTEMPTS", cfg.Assistant.PollAttempts); err != nil {
		return nil, err
	}
	if cfg.Assistant.PollInterval, err = getEnvDuration("ASSISTANT_POLL_INTERVAL", cfg.Assistant.PollInterval); err != nil {
		return nil, err
	}
	if cfg.Assistant.MaxToolRounds, err = getEnvInt("ASSISTANT_MAX_TOOL_ROUNDS", cfg.Assistant.MaxToolRounds); err != nil {
		return nil, err
	}

	cfg.Scheduler.StepSizeRefresh = getEnv("STEP_SIZE_REFRESH", cfg.Scheduler.StepSizeRefresh)

	return cfg, nil
}

// Validate reports every missing credential in one Configuration error
func (c *Config) Validate() error {
	var missing []string
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.OpenAI.AssistantID == "" {
		missing = append(missing, "OPENAI_ASSISTANT_ID")
	}
	if c.Binance.APIKey == "" {
		missing = append(missing, "BINANCE_API_KEY")
	}
	if c.Binance.APISecret == "" {
		missing = append(missing, "BINANCE_API_SECRET")
	}
	if len(missing) > 0 {
		return domain.NewError(domain.KindConfiguration, "missing "+strings.Join(missing, ", "), nil)
	}

	if c.Assistant.PollAttempts < 1 || c.Assistant.PollInterval <= 0 {
		return domain.NewError(domain.KindConfiguration, "assistant poll budget must be positive", nil)
	}
	if c.Database.URL == "" && c.Database.BoltPath == "" {
		return domain.NewError(domain.KindConfiguration, "one of DATABASE_URL or BOLT_PATH is required", nil)
	}
	return nil
}

// IsProduction reports GO_ENV=production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, domain.NewError(domain.KindConfiguration, key+" must be an integer", err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, domain.NewError(domain.KindConfiguration, key+" must be a duration", err)
	}
	return d, nil
}
