// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/fd1az/flashloan-engine/internal/apperror"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Providers []ProviderConfig `mapstructure:"providers"`
	Engine    EngineConfig     `mapstructure:"engine"`
	Ranking   RankingConfig    `mapstructure:"ranking"`
	Transport TransportConfig  `mapstructure:"transport"`
	Stats     StatsConfig      `mapstructure:"stats"`
	Journal   JournalConfig    `mapstructure:"journal"`
	Feed      FeedConfig       `mapstructure:"feed"`
	Telemetry TelemetryConfig  `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	HealthPort  int    `mapstructure:"health_port"`
}

// ProviderConfig describes one lending provider.
type ProviderConfig struct {
	Name            string   `mapstructure:"name"`
	ProgramID       string   `mapstructure:"program_id"`
	Endpoint        string   `mapstructure:"endpoint"`
	FeeRate         float64  `mapstructure:"fee_rate"`
	MaxLoan         float64  `mapstructure:"max_loan"`
	Tokens          []string `mapstructure:"tokens"`
	MinHealthFactor float64  `mapstructure:"min_health_factor"`
	Rating          float64  `mapstructure:"rating"`
	Approved        bool     `mapstructure:"approved"`
}

// FeeRateDecimal returns the fee rate as decimal.Decimal.
func (p ProviderConfig) FeeRateDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.FeeRate)
}

// MaxLoanDecimal returns the max loan as decimal.Decimal.
func (p ProviderConfig) MaxLoanDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.MaxLoan)
}

// EngineConfig holds the engine-wide limits.
type EngineConfig struct {
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	MinLoanAmount    float64       `mapstructure:"min_loan_amount"`
	MaxConcurrent    int           `mapstructure:"max_concurrent"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`
}

// MinLoanAmountDecimal returns the minimum loan as decimal.Decimal.
func (c EngineConfig) MinLoanAmountDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinLoanAmount)
}

// RankingConfig holds the rating weighting used by the ranker.
type RankingConfig struct {
	TrustedRating float64 `mapstructure:"trusted_rating"`
	PenaltyFactor float64 `mapstructure:"penalty_factor"`
}

// TransportConfig holds provider HTTP settings.
type TransportConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// StatsConfig holds community stats settings.
type StatsConfig struct {
	TopPerformers int     `mapstructure:"top_performers"`
	FundShare     float64 `mapstructure:"fund_share"`
}

// JournalConfig holds the execution journal settings.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// FeedConfig holds the Redis feed settings.
type FeedConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("FL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "FL_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "FL_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "FL_LOG_LEVEL", "LOG_LEVEL")

	v.BindEnv("feed.addr", "FL_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("feed.password", "FL_REDIS_PASSWORD", "REDIS_PASSWORD")
	v.BindEnv("journal.dsn", "FL_JOURNAL_DSN")

	v.BindEnv("telemetry.enabled", "FL_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "FL_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "FL_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "flashloan-engine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.health_port", 8081)

	v.SetDefault("engine.cache_ttl", "60s")
	v.SetDefault("engine.probe_timeout", "5s")
	v.SetDefault("engine.min_loan_amount", 10)
	v.SetDefault("engine.max_concurrent", 3)
	v.SetDefault("engine.max_retries", 2)
	v.SetDefault("engine.retry_delay", "2s")
	v.SetDefault("engine.execution_timeout", "60s")
	v.SetDefault("engine.refresh_interval", "60s")

	v.SetDefault("ranking.trusted_rating", 4.0)
	v.SetDefault("ranking.penalty_factor", 0.8)

	v.SetDefault("transport.request_timeout", "10s")
	v.SetDefault("transport.poll_interval", "500ms")
	v.SetDefault("transport.rate_limit_rps", 5)
	v.SetDefault("transport.rate_limit_burst", 2)
	v.SetDefault("transport.breaker_failures", 5)
	v.SetDefault("transport.breaker_cooldown", "30s")

	v.SetDefault("stats.top_performers", 10)
	v.SetDefault("stats.fund_share", 0)

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.dsn", "flashloan.db")

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.addr", "localhost:6379")
	v.SetDefault("feed.prefix", "flashloan")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "flashloan-engine")
	v.SetDefault("telemetry.trace_provider", "ZIPKIN_PROVIDER")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate checks every numeric parameter and each provider entry.
// All failures are StartupConfigurationError: the engine must not start.
func (c *Config) Validate() error {
	e := c.Engine
	switch {
	case e.CacheTTL < 0:
		return startupErr("engine.cache_ttl must not be negative, got %s", e.CacheTTL)
	case e.ProbeTimeout <= 0:
		return startupErr("engine.probe_timeout must be positive, got %s", e.ProbeTimeout)
	case e.MinLoanAmount <= 0:
		return startupErr("engine.min_loan_amount must be positive, got %v", e.MinLoanAmount)
	case e.MaxConcurrent <= 0:
		return startupErr("engine.max_concurrent must be positive, got %d", e.MaxConcurrent)
	case e.MaxRetries < 0:
		return startupErr("engine.max_retries must not be negative, got %d", e.MaxRetries)
	case e.RetryDelay < 0:
		return startupErr("engine.retry_delay must not be negative, got %s", e.RetryDelay)
	case e.ExecutionTimeout <= 0:
		return startupErr("engine.execution_timeout must be positive, got %s", e.ExecutionTimeout)
	}

	if c.Ranking.TrustedRating < 0 || c.Ranking.TrustedRating > 5 {
		return startupErr("ranking.trusted_rating must be within [0,5], got %v", c.Ranking.TrustedRating)
	}
	if c.Ranking.PenaltyFactor < 0 || c.Ranking.PenaltyFactor > 1 {
		return startupErr("ranking.penalty_factor must be within [0,1], got %v", c.Ranking.PenaltyFactor)
	}
	if c.Stats.FundShare < 0 || c.Stats.FundShare > 1 {
		return startupErr("stats.fund_share must be within [0,1], got %v", c.Stats.FundShare)
	}

	if len(c.Providers) == 0 {
		return startupErr("at least one provider must be configured")
	}
	for i, p := range c.Providers {
		if err := p.validate(); err != nil {
			return startupErr("providers[%d] %q: %v", i, p.Name, err)
		}
	}
	return nil
}

func (p ProviderConfig) validate() error {
	switch {
	case p.Name == "":
		return errors.New("name is required")
	case p.Endpoint == "":
		return errors.New("endpoint is required")
	case !common.IsHexAddress(p.ProgramID):
		return fmt.Errorf("invalid program_id: %s", p.ProgramID)
	case p.FeeRate < 0 || p.FeeRate >= 1:
		return fmt.Errorf("fee_rate must be within [0,1), got %v", p.FeeRate)
	case p.MaxLoan <= 0:
		return fmt.Errorf("max_loan must be positive, got %v", p.MaxLoan)
	case len(p.Tokens) == 0:
		return errors.New("tokens cannot be empty")
	case p.Rating < 0 || p.Rating > 5:
		return fmt.Errorf("rating must be within [0,5], got %v", p.Rating)
	case p.MinHealthFactor < 0:
		return fmt.Errorf("min_health_factor must not be negative, got %v", p.MinHealthFactor)
	}
	return nil
}

func startupErr(format string, args ...any) error {
	return apperror.New(apperror.CodeStartupConfiguration, apperror.WithContextf(format, args...))
}
