package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	LLM        LLMConfig
	Retrieval  RetrievalConfig
	Selector   SelectorConfig
	Benchmark  BenchmarkConfig
	Evaluation EvaluationConfig
	Cost       CostConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	Provider       string
	Model          string
	APIKey         string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
	EmbeddingDim   int
}

type RetrievalConfig struct {
	TopK           int
	MinScore       float64
	TimeHorizonMin int
	CategoryWeight float64
	TimeWeight     float64
	KeywordWeight  float64
}

type SelectorConfig struct {
	Margin float64
}

type BenchmarkConfig struct {
	RunsPerQuery      int
	Samples           int
	TargetLatencyMS   int
	RetrievalTargetMS int
}

type EvaluationConfig struct {
	// GoldenVariations multiplies the five built-in scenarios, so the
	// default golden set holds 50 examples.
	GoldenVariations int
}

type CostConfig struct {
	PerInputToken  float64
	PerOutputToken float64
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/nudge-engine")

	viper.SetEnvPrefix("NUDGE_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/nudges.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.maxTokens", 256)
	viper.SetDefault("llm.timeoutSec", 5)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingDim", 1536)

	viper.SetDefault("retrieval.topK", 3)
	viper.SetDefault("retrieval.minScore", 0.15)
	viper.SetDefault("retrieval.timeHorizonMin", 360)
	viper.SetDefault("retrieval.categoryWeight", 0.3)
	viper.SetDefault("retrieval.timeWeight", 0.3)
	viper.SetDefault("retrieval.keywordWeight", 0.4)

	viper.SetDefault("selector.margin", 0.10)

	viper.SetDefault("benchmark.runsPerQuery", 5)
	viper.SetDefault("benchmark.samples", 200)
	viper.SetDefault("benchmark.targetLatencyMS", 500)
	viper.SetDefault("benchmark.retrievalTargetMS", 200)

	viper.SetDefault("evaluation.goldenVariations", 10)

	viper.SetDefault("cost.perInputToken", 0.0000001)
	viper.SetDefault("cost.perOutputToken", 0.0000001)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
