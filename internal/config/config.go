package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	WebSearch WebSearchConfig `yaml:"websearch" mapstructure:"websearch"`
	CTGov     CTGovConfig     `yaml:"ctgov" mapstructure:"ctgov"`
	PubMed    PubMedConfig    `yaml:"pubmed" mapstructure:"pubmed"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Aggregate AggregateConfig `yaml:"aggregate" mapstructure:"aggregate"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for the extraction models.
type AnthropicConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	ExtractionModel string `yaml:"extraction_model" mapstructure:"extraction_model"`
	LookupModel     string `yaml:"lookup_model" mapstructure:"lookup_model"`
	MaxTokens       int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// WebSearchConfig holds the web-search chat API settings used by the
// discovery fallback.
type WebSearchConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	Model            string `yaml:"model" mapstructure:"model"`
	BreakerFailures  int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// CTGovConfig configures the trial registry client.
type CTGovConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	MinIntervalMs  int    `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	MaxResults     int    `yaml:"max_results" mapstructure:"max_results"`
	RetryAttempts  int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	DetailFanout   int    `yaml:"detail_fanout" mapstructure:"detail_fanout"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PubMedConfig configures the paper index client.
type PubMedConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	PMCBaseURL  string `yaml:"pmc_base_url" mapstructure:"pmc_base_url"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	MaxResults  int    `yaml:"max_results" mapstructure:"max_results"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ScoringConfig holds the confidence scorer weights and the single review
// threshold governing manual-review load.
type ScoringConfig struct {
	CompletenessWeight float64 `yaml:"completeness_weight" mapstructure:"completeness_weight"`
	SourceWeight       float64 `yaml:"source_weight" mapstructure:"source_weight"`
	SignificanceWeight float64 `yaml:"significance_weight" mapstructure:"significance_weight"`
	QualityWeight      float64 `yaml:"quality_weight" mapstructure:"quality_weight"`
	ReviewThreshold    float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
}

// AggregateConfig holds the aggregation policy constants. These encode
// product policy, not clinical law, so they are configurable.
type AggregateConfig struct {
	CVHighMax      float64 `yaml:"cv_high_max" mapstructure:"cv_high_max"`
	CVModerateMax  float64 `yaml:"cv_moderate_max" mapstructure:"cv_moderate_max"`
	DefaultScore   float64 `yaml:"default_score" mapstructure:"default_score"`
	StrongSignal   float64 `yaml:"strong_signal" mapstructure:"strong_signal"`
	ModerateSignal float64 `yaml:"moderate_signal" mapstructure:"moderate_signal"`
	WeakSignal     float64 `yaml:"weak_signal" mapstructure:"weak_signal"`
}

// SessionConfig configures benchmark session orchestration.
type SessionConfig struct {
	// InterDrugDelaySecs is the fixed pause between drugs. It exists to
	// respect third-party API rate limits and must not be removed.
	InterDrugDelaySecs   int `yaml:"inter_drug_delay_secs" mapstructure:"inter_drug_delay_secs"`
	MinPublicationPoints int `yaml:"min_publication_points" mapstructure:"min_publication_points"`
	MaxSecondaryOutcomes int `yaml:"max_secondary_outcomes" mapstructure:"max_secondary_outcomes"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EVIDENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.extraction_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.lookup_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("websearch.base_url", "https://api.perplexity.ai")
	v.SetDefault("websearch.model", "sonar-pro")
	v.SetDefault("websearch.breaker_failures", 5)
	v.SetDefault("websearch.breaker_reset_secs", 30)
	v.SetDefault("ctgov.base_url", "https://clinicaltrials.gov/api/v2")
	v.SetDefault("ctgov.min_interval_ms", 1200)
	v.SetDefault("ctgov.max_results", 50)
	v.SetDefault("ctgov.retry_attempts", 3)
	v.SetDefault("ctgov.retry_backoff_ms", 2000)
	v.SetDefault("ctgov.detail_fanout", 3)
	v.SetDefault("ctgov.timeout_secs", 30)
	v.SetDefault("pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("pubmed.pmc_base_url", "https://www.ncbi.nlm.nih.gov/pmc")
	v.SetDefault("pubmed.max_results", 20)
	v.SetDefault("pubmed.timeout_secs", 30)
	v.SetDefault("scoring.completeness_weight", 0.4)
	v.SetDefault("scoring.source_weight", 0.3)
	v.SetDefault("scoring.significance_weight", 0.2)
	v.SetDefault("scoring.quality_weight", 0.1)
	v.SetDefault("scoring.review_threshold", 0.7)
	v.SetDefault("aggregate.cv_high_max", 25.0)
	v.SetDefault("aggregate.cv_moderate_max", 50.0)
	v.SetDefault("aggregate.default_score", 5.0)
	v.SetDefault("aggregate.strong_signal", 2.5)
	v.SetDefault("aggregate.moderate_signal", 1.5)
	v.SetDefault("aggregate.weak_signal", 0.5)
	v.SetDefault("session.inter_drug_delay_secs", 3)
	v.SetDefault("session.min_publication_points", 3)
	v.SetDefault("session.max_secondary_outcomes", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given mode.
// Modes: "benchmark" (full pipeline), "aggregate" (store only), "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	checkUnit := func(name string, v float64) {
		if v < 0 || v > 1 {
			problems = append(problems, name+" must be between 0 and 1")
		}
	}

	switch mode {
	case "benchmark":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		checkUnit("scoring.review_threshold", c.Scoring.ReviewThreshold)
		if c.Session.InterDrugDelaySecs < 0 {
			problems = append(problems, "session.inter_drug_delay_secs must be >= 0")
		}
	case "aggregate":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Aggregate.CVHighMax <= 0 || c.Aggregate.CVModerateMax <= c.Aggregate.CVHighMax {
			problems = append(problems, "aggregate CV thresholds must satisfy 0 < cv_high_max < cv_moderate_max")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
