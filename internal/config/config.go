package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Store  StoreConfig  `mapstructure:"store"  validate:"required"`
	LLM    LLMConfig    `mapstructure:"llm"    validate:"required"`
	Engine EngineConfig `mapstructure:"engine" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// StoreConfig selects and configures the task store backend.
type StoreConfig struct {
	// Driver is "memory" (default) or "postgres".
	Driver string `mapstructure:"driver" validate:"required,oneof=memory postgres"`

	// URL is the database connection string, required for postgres.
	URL string `mapstructure:"url" validate:"required_if=Driver postgres"`
}

// LLMConfig contains the text-completion collaborator settings and the
// synthesizer's budgets.
type LLMConfig struct {
	GeminiAPIKey     string        `mapstructure:"gemini_api_key"    validate:"required"`
	ModelName        string        `mapstructure:"model_name"        validate:"required"`
	MaxRetries       int           `mapstructure:"max_retries"       validate:"gte=1"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"  validate:"gt=0"`
	SynthesisTimeout time.Duration `mapstructure:"synthesis_timeout" validate:"gt=0"`
}

// EngineConfig contains the task lifecycle engine knobs.
type EngineConfig struct {
	MaxInputBytes int `mapstructure:"max_input_bytes" validate:"gt=0"`
	WorkerCount   int `mapstructure:"worker_count"    validate:"gt=0"`
	QueueSize     int `mapstructure:"queue_size"      validate:"gt=0"`
	RepairBudget  int `mapstructure:"repair_budget"   validate:"gte=1"`
}
