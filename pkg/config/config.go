// Package config loads Strongroom configuration from a YAML file and
// STRONGROOM_-prefixed environment variables, with defaults for every key
// that has a sane one. Environment variables win over the file: nested keys
// map by replacing dots with underscores, e.g.
// STRONGROOM_RECONCILIATION_MAXCONCURRENTJOBS.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full process configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Log            LogConfig            `mapstructure:"log"`
	Workflow       WorkflowConfig       `mapstructure:"workflow"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Providers      ProvidersConfig      `mapstructure:"providers"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listenAddr"`
	JWTSecret  string `mapstructure:"jwtSecret"`
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// WorkflowConfig configures the orchestrator.
type WorkflowConfig struct {
	MaxBroadcastAttempts int `mapstructure:"maxBroadcastAttempts"`
}

// ReconciliationConfig configures the service, worker and scheduler.
type ReconciliationConfig struct {
	WorkerEnabled     bool             `mapstructure:"workerEnabled"`
	PollingIntervalMs int              `mapstructure:"pollingIntervalMs"`
	MaxConcurrentJobs int              `mapstructure:"maxConcurrentJobs"`
	StopTimeoutMs     int              `mapstructure:"stopTimeoutMs"`
	RateLimit         RateLimitConfig  `mapstructure:"rateLimit"`
	ReorgThresholds   map[string]int64 `mapstructure:"reorgThresholds"`
	Scheduler         SchedulerConfig  `mapstructure:"scheduler"`
}

// RateLimitConfig bounds outbound provider traffic per worker process.
type RateLimitConfig struct {
	TokensPerInterval int `mapstructure:"tokensPerInterval"`
}

// SchedulerConfig configures periodic re-reconciliation.
type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	TickInterval  time.Duration `mapstructure:"tickInterval"`
	ReconcileEach time.Duration `mapstructure:"reconcileEach"`
}

// ProvidersConfig configures external history providers.
type ProvidersConfig struct {
	Blockbook BlockbookConfig `mapstructure:"blockbook"`
}

// BlockbookConfig configures the Blockbook-style HTTP provider.
type BlockbookConfig struct {
	BaseURL   string          `mapstructure:"baseUrl"`
	APIKey    string          `mapstructure:"apiKey"`
	AsyncJobs AsyncJobsConfig `mapstructure:"asyncJobs"`
}

// AsyncJobsConfig opts chains into the asynchronous provider flow.
type AsyncJobsConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	TimeoutHours int  `mapstructure:"timeoutHours"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("STRONGROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listenAddr", ":8080")

	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 30*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("workflow.maxBroadcastAttempts", 3)

	v.SetDefault("reconciliation.workerEnabled", true)
	v.SetDefault("reconciliation.pollingIntervalMs", 5000)
	v.SetDefault("reconciliation.maxConcurrentJobs", 3)
	v.SetDefault("reconciliation.stopTimeoutMs", 30000)
	v.SetDefault("reconciliation.rateLimit.tokensPerInterval", 10)
	v.SetDefault("reconciliation.scheduler.enabled", false)
	v.SetDefault("reconciliation.scheduler.tickInterval", 5*time.Minute)
	v.SetDefault("reconciliation.scheduler.reconcileEach", 24*time.Hour)

	v.SetDefault("providers.blockbook.asyncJobs.enabled", false)
	v.SetDefault("providers.blockbook.asyncJobs.timeoutHours", 4)
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Reconciliation.MaxConcurrentJobs < 1 {
		return fmt.Errorf("reconciliation.maxConcurrentJobs must be >= 1, got %d", c.Reconciliation.MaxConcurrentJobs)
	}
	if c.Reconciliation.PollingIntervalMs < 1 {
		return fmt.Errorf("reconciliation.pollingIntervalMs must be >= 1, got %d", c.Reconciliation.PollingIntervalMs)
	}
	if c.Reconciliation.RateLimit.TokensPerInterval < 1 {
		return fmt.Errorf("reconciliation.rateLimit.tokensPerInterval must be >= 1, got %d", c.Reconciliation.RateLimit.TokensPerInterval)
	}
	if c.Workflow.MaxBroadcastAttempts < 0 {
		return fmt.Errorf("workflow.maxBroadcastAttempts must be >= 0, got %d", c.Workflow.MaxBroadcastAttempts)
	}
	if c.Providers.Blockbook.AsyncJobs.TimeoutHours < 1 {
		return fmt.Errorf("providers.blockbook.asyncJobs.timeoutHours must be >= 1, got %d", c.Providers.Blockbook.AsyncJobs.TimeoutHours)
	}
	return nil
}

// PollingInterval returns the worker poll sleep as a duration.
func (c *ReconciliationConfig) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalMs) * time.Millisecond
}

// StopTimeout returns the worker stop grace period as a duration.
func (c *ReconciliationConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMs) * time.Millisecond
}

// AsyncJobTimeout returns the async wall-clock timeout as a duration.
func (c *AsyncJobsConfig) AsyncJobTimeout() time.Duration {
	return time.Duration(c.TimeoutHours) * time.Hour
}
