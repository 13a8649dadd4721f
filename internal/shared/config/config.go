package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration.
type Config struct {
	Port            string `envconfig:"PORT" default:"8080"`
	Env             string `envconfig:"ENV" default:"dev"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	CORSAllowOrigin string `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:5173"`

	LLMProvider    string        `envconfig:"LLM_PROVIDER" default:"openai"`
	LLMModel       string        `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	VerifyModel    string        `envconfig:"LLM_VERIFY_MODEL"`
	OpenAIAPIKey   string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string        `envconfig:"OPENAI_BASE_URL"`
	LLMTimeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"120s"`
	RetryAttempts  int           `envconfig:"LLM_RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"LLM_RETRY_BASE_DELAY" default:"500ms"`
	PromptsDir     string        `envconfig:"PROMPTS_DIR"`

	FactBandMin      int      `envconfig:"FACT_BAND_MIN" default:"5"`
	FactBandMax      int      `envconfig:"FACT_BAND_MAX" default:"8"`
	MaxRegenerations int      `envconfig:"MAX_REGENERATIONS" default:"1"`
	Tier1WordBudget  int      `envconfig:"TIER1_WORD_BUDGET" default:"350"`
	Tier2WordBudget  int      `envconfig:"TIER2_WORD_BUDGET" default:"900"`
	BannedPhrases    []string `envconfig:"BANNED_PHRASES"`

	MaxGapQuestions int    `envconfig:"MAX_GAP_QUESTIONS" default:"5"`
	DefaultLanguage string `envconfig:"DEFAULT_LANGUAGE" default:"en"`

	CostCeilingUSD       float64 `envconfig:"COST_CEILING_USD" default:"2.5"`
	StopOnBudgetExceeded bool    `envconfig:"STOP_ON_BUDGET_EXCEEDED" default:"false"`
	CostRatesFile        string  `envconfig:"COST_RATES_FILE"`

	ObjectStoreType string `envconfig:"OBJECT_STORE" default:"local"`
	LocalStoreDir   string `envconfig:"LOCAL_STORE_DIR" default:"./data"`
	AWSRegion       string `envconfig:"AWS_REGION"`
	S3Bucket        string `envconfig:"S3_BUCKET"`
	S3Prefix        string `envconfig:"S3_PREFIX" default:"artifacts/"`

	RabbitMQURL       string        `envconfig:"RABBITMQ_URL"`
	JobQueue          string        `envconfig:"JOB_QUEUE" default:"application_jobs"`
	AsyncAdvance      bool          `envconfig:"ASYNC_ADVANCE" default:"false"`
	WorkerConcurrency int           `envconfig:"WORKER_CONCURRENCY" default:"4"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	NATSURL           string        `envconfig:"NATS_URL"`
	RedisURL          string        `envconfig:"REDIS_URL"`
	ResearchTimeout   time.Duration `envconfig:"RESEARCH_TIMEOUT" default:"20s"`
	ResearchCacheTTL  time.Duration `envconfig:"RESEARCH_CACHE_TTL" default:"24h"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	for _, path := range []string{".env", "cmd/.env"} {
		_ = godotenv.Load(path)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.ObjectStoreType = normalizeStoreType(cfg.ObjectStoreType)
	if strings.TrimSpace(cfg.VerifyModel) == "" {
		cfg.VerifyModel = cfg.LLMModel
	}

	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}
	if cfg.FactBandMin > cfg.FactBandMax {
		return Config{}, fmt.Errorf("FACT_BAND_MIN (%d) exceeds FACT_BAND_MAX (%d)", cfg.FactBandMin, cfg.FactBandMax)
	}
	if cfg.MaxRegenerations < 0 {
		cfg.MaxRegenerations = 0
	}
	if cfg.MaxGapQuestions < 1 {
		cfg.MaxGapQuestions = 1
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	return cfg, nil
}

// CORSOrigins splits the configured origin list.
func (c Config) CORSOrigins() []string {
	return splitAndTrim(c.CORSAllowOrigin)
}

// IsDevLike reports whether the environment tolerates in-memory fallbacks.
func (c Config) IsDevLike() bool {
	switch c.Env {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
