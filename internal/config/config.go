// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (WOOCHAT_* runtime override)
//  2. Config file (./woochat.yaml or ~/.woochat/config.yaml)
//  3. Default values
//
// All retrieval-scoring constants (score blend weights, lexical scaling,
// similarity floors, result limits) are configuration, not code constants:
// they are tuning parameters, and tenants' corpora differ enough that the
// defaults are only a starting point.
//
// Security: sensitive fields (database password, API keys) are masked in
// MarshalJSON and never logged.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature is out of [0, 2].
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidRetrievalWeights indicates the score blend weights are invalid.
	ErrInvalidRetrievalWeights = errors.New("invalid retrieval weights")

	// ErrInvalidSimilarityFloor indicates a similarity floor is out of [0, 1].
	ErrInvalidSimilarityFloor = errors.New("invalid similarity floor")

	// ErrInvalidResultLimit indicates a retrieval result limit is non-positive.
	ErrInvalidResultLimit = errors.New("invalid result limit")

	// ErrInvalidHistoryWindow indicates the history window is non-positive.
	ErrInvalidHistoryWindow = errors.New("invalid history window")
)

// Default model identifiers for the googlegenai plugin.
const (
	DefaultChatModel       = "googleai/gemini-2.5-flash"
	DefaultClassifierModel = "googleai/gemini-2.5-flash-lite"
	DefaultEmbedderModel   = "gemini-embedding-001"
)

// VectorDimension is the embedding dimensionality stored in pgvector.
// gemini-embedding-001 outputs 3072 dims by default but supports truncation
// to 768 via OutputDimensionality; the schema in db/migrations uses 768.
const VectorDimension int32 = 768

// Retrieval holds the hybrid-search tuning parameters.
//
// These mirror the scoring formula: a candidate's hybrid score is
// SemanticWeight*semantic + KeywordWeight*min(1, lexicalRank*KeywordScale).
type Retrieval struct {
	SemanticWeight float64 `mapstructure:"semantic_weight" json:"semantic_weight"`
	KeywordWeight  float64 `mapstructure:"keyword_weight" json:"keyword_weight"`
	// KeywordScale stretches ts_rank output (typically well below 1.0)
	// into a range comparable with cosine similarity before blending.
	KeywordScale float64 `mapstructure:"keyword_scale" json:"keyword_scale"`
	// DefaultMinSimilarity is the loosest semantic floor; intents may
	// override it upward (see intent.PolicyFor).
	DefaultMinSimilarity float64 `mapstructure:"default_min_similarity" json:"default_min_similarity"`
	// FocusedMinSimilarity applies to intents with a clear target corpus.
	FocusedMinSimilarity float64 `mapstructure:"focused_min_similarity" json:"focused_min_similarity"`
	// StrictMinSimilarity applies to policy questions, where a loose
	// match is worse than no match.
	StrictMinSimilarity float64 `mapstructure:"strict_min_similarity" json:"strict_min_similarity"`
	ProductLimit         int     `mapstructure:"product_limit" json:"product_limit"`
	FaqLimit             int     `mapstructure:"faq_limit" json:"faq_limit"`
	// MaxLimit caps limits requested by the model in tool arguments.
	MaxLimit int `mapstructure:"max_limit" json:"max_limit"`
}

// Postgres holds the database connection settings.
type Postgres struct {
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	User     string `mapstructure:"user" json:"user"`
	Password string `mapstructure:"password" json:"-"`
	DBName   string `mapstructure:"dbname" json:"dbname"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode"`
}

// DSN returns a connection string suitable for pgxpool.
func (p Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// Observability holds tracing settings.
type Observability struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled" json:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name" json:"service_name"`
}

// Config stores application configuration.
type Config struct {
	// Model selection. ChatModel drives conversations; ClassifierModel is
	// a cheaper model used for the single structured intent call.
	ChatModel       string  `mapstructure:"chat_model" json:"chat_model"`
	ClassifierModel string  `mapstructure:"classifier_model" json:"classifier_model"`
	EmbedderModel   string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature     float32 `mapstructure:"temperature" json:"temperature"`

	// HistoryWindow bounds the recent messages loaded per turn.
	HistoryWindow int `mapstructure:"history_window" json:"history_window"`
	// ClassifierHistory bounds the messages fed to the intent classifier.
	ClassifierHistory int `mapstructure:"classifier_history" json:"classifier_history"`

	// FreeMonthlyMessages is the quota applied when a tenant's plan does
	// not specify a monthly message limit.
	FreeMonthlyMessages int `mapstructure:"free_monthly_messages" json:"free_monthly_messages"`

	// ProviderTimeoutSeconds bounds each embedding and LLM call.
	ProviderTimeoutSeconds int `mapstructure:"provider_timeout_seconds" json:"provider_timeout_seconds"`

	// ServerAddr is the HTTP listen address.
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`

	Retrieval     Retrieval     `mapstructure:"retrieval" json:"retrieval"`
	Postgres      Postgres      `mapstructure:"postgres" json:"postgres"`
	Observability Observability `mapstructure:"observability" json:"observability"`
}

// MarshalJSON masks sensitive fields. When adding new secrets
// (passwords, API keys, tokens), update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	a := alias(c)
	a.Postgres.Password = "****"
	return json.Marshal(a)
}

// setDefaults registers default values on the given viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("chat_model", DefaultChatModel)
	v.SetDefault("classifier_model", DefaultClassifierModel)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("temperature", 0.7)

	v.SetDefault("history_window", 10)
	v.SetDefault("classifier_history", 3)
	v.SetDefault("free_monthly_messages", 100)
	v.SetDefault("provider_timeout_seconds", 30)
	v.SetDefault("server_addr", "127.0.0.1:8090")

	v.SetDefault("retrieval.semantic_weight", 0.6)
	v.SetDefault("retrieval.keyword_weight", 0.4)
	v.SetDefault("retrieval.keyword_scale", 2.0)
	v.SetDefault("retrieval.default_min_similarity", 0.2)
	v.SetDefault("retrieval.focused_min_similarity", 0.3)
	v.SetDefault("retrieval.strict_min_similarity", 0.4)
	v.SetDefault("retrieval.product_limit", 5)
	v.SetDefault("retrieval.faq_limit", 3)
	v.SetDefault("retrieval.max_limit", 20)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "woochat")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "woochat")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.otlp_endpoint", "localhost:4318")
	v.SetDefault("observability.service_name", "woo-ai-chatbot")
}

// Load reads configuration from defaults, an optional config file, and
// WOOCHAT_* environment variables, then validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("woochat")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".woochat"))
	}

	v.SetEnvPrefix("WOOCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; defaults + env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ChatModel) == "" {
		return fmt.Errorf("%w: chat_model is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.ClassifierModel) == "" {
		return fmt.Errorf("%w: classifier_model is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v not in [0, 2]", ErrInvalidTemperature, c.Temperature)
	}
	if c.HistoryWindow <= 0 || c.ClassifierHistory <= 0 {
		return fmt.Errorf("%w: history_window=%d classifier_history=%d",
			ErrInvalidHistoryWindow, c.HistoryWindow, c.ClassifierHistory)
	}

	if c.Postgres.Host == "" {
		return ErrInvalidPostgresHost
	}
	if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.Postgres.Port)
	}
	if c.Postgres.DBName == "" {
		return ErrInvalidPostgresDBName
	}

	r := c.Retrieval
	if r.SemanticWeight < 0 || r.KeywordWeight < 0 || r.SemanticWeight+r.KeywordWeight == 0 {
		return fmt.Errorf("%w: semantic=%v keyword=%v",
			ErrInvalidRetrievalWeights, r.SemanticWeight, r.KeywordWeight)
	}
	if r.KeywordScale <= 0 {
		return fmt.Errorf("%w: keyword_scale=%v", ErrInvalidRetrievalWeights, r.KeywordScale)
	}
	for _, floor := range []float64{r.DefaultMinSimilarity, r.FocusedMinSimilarity, r.StrictMinSimilarity} {
		if floor < 0 || floor > 1 {
			return fmt.Errorf("%w: %v", ErrInvalidSimilarityFloor, floor)
		}
	}
	if r.ProductLimit <= 0 || r.FaqLimit <= 0 || r.MaxLimit <= 0 {
		return fmt.Errorf("%w: product=%d faq=%d max=%d",
			ErrInvalidResultLimit, r.ProductLimit, r.FaqLimit, r.MaxLimit)
	}

	return nil
}
