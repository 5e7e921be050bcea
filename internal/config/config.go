package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Auth     AuthConfig     `mapstructure:"auth"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LLMConfig struct {
	// Provider is one of openai, anthropic, cli, mock.
	Provider        string  `mapstructure:"provider"`
	OpenAIAPIKey    string  `mapstructure:"openai_api_key"`
	OpenAIBaseURL   string  `mapstructure:"openai_base_url"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"`
	CLIPath         string  `mapstructure:"cli_path"`
	GenerationModel string  `mapstructure:"generation_model"`
	ValidationModel string  `mapstructure:"validation_model"`
	ResearchModel   string  `mapstructure:"research_model"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"`
}

type PipelineConfig struct {
	MaxRetries          int           `mapstructure:"max_retries"`
	BackoffBase         time.Duration `mapstructure:"backoff_base"`
	ResearchTTL         time.Duration `mapstructure:"research_ttl"`
	ValidationBatchSize int           `mapstructure:"validation_batch_size"`
	ErrorThreshold      int           `mapstructure:"error_threshold"`
	WorkerConcurrency   int           `mapstructure:"worker_concurrency"`
	VisibilityTimeout   time.Duration `mapstructure:"visibility_timeout"`
	MaxDeliveries       int           `mapstructure:"max_deliveries"`
	Stream              string        `mapstructure:"stream"`
	ConsumerGroup       string        `mapstructure:"consumer_group"`
	DeadLetterStream    string        `mapstructure:"dead_letter_stream"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "certforge")
	v.SetDefault("database.password", "certforge")
	v.SetDefault("database.name", "certforge")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.cli_path", "claude")
	v.SetDefault("llm.generation_model", "gpt-4o")
	v.SetDefault("llm.validation_model", "gpt-4o-mini")
	v.SetDefault("llm.research_model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 4096)

	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.backoff_base", time.Second)
	v.SetDefault("pipeline.research_ttl", 24*time.Hour)
	v.SetDefault("pipeline.validation_batch_size", 5)
	v.SetDefault("pipeline.error_threshold", 10)
	v.SetDefault("pipeline.worker_concurrency", 4)
	v.SetDefault("pipeline.visibility_timeout", 5*time.Minute)
	v.SetDefault("pipeline.max_deliveries", 5)
	v.SetDefault("pipeline.stream", "questiongen:jobs")
	v.SetDefault("pipeline.consumer_group", "questiongen-workers")
	v.SetDefault("pipeline.dead_letter_stream", "questiongen:dead")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// Load reads config.yaml from path (when present) and overlays environment
// variables, e.g. PIPELINE_MAX_RETRIES for pipeline.max_retries.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by deploy tooling.
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("llm.openai_api_key", "LLM_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.anthropic_api_key", "LLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET", "JWT_SECRET")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic", "cli", "mock":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.Pipeline.MaxRetries < 1 {
		return fmt.Errorf("pipeline.max_retries must be at least 1")
	}
	if c.Pipeline.ValidationBatchSize < 1 {
		return fmt.Errorf("pipeline.validation_batch_size must be at least 1")
	}
	if c.Pipeline.WorkerConcurrency < 1 {
		return fmt.Errorf("pipeline.worker_concurrency must be at least 1")
	}
	return nil
}
