package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	ERP      ERPConfig      `mapstructure:"erp"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Security SecurityConfig `mapstructure:"security"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// WorkflowConfig holds reconciliation workflow settings
type WorkflowConfig struct {
	ApprovalThreshold float64       `mapstructure:"approval_threshold"` // USD, payments at or above need approval
	MaxToolRetries    int           `mapstructure:"max_tool_retries"`   // attempts per tool call; 0 means one attempt
	FetchLimit        int           `mapstructure:"fetch_limit"`
	RetryBackoff      string        `mapstructure:"retry_backoff"` // exponential or constant
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
}

// ERP sources
const (
	ERPSourceCatalog = "catalog"
	ERPSourceLedger  = "ledger"
)

// ERPConfig selects where invoices and purchase orders come from
type ERPConfig struct {
	Source      string  `mapstructure:"source"`
	LedgerPath  string  `mapstructure:"ledger_path"`
	FailureRate float64 `mapstructure:"failure_rate"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID          string `mapstructure:"app_id"`
	AppSecret      string `mapstructure:"app_secret"`
	ApproverOpenID string `mapstructure:"approver_open_id"`
}

// SecurityConfig holds response redaction settings
type SecurityConfig struct {
	PIIKeys []string `mapstructure:"pii_keys"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are skipped and variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := gotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads configuration from an optional YAML file and environment variables.
// An empty configPath uses defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.path", "data/checkpoints.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("workflow.approval_threshold", 5000.0)
	v.SetDefault("workflow.max_tool_retries", 3)
	v.SetDefault("workflow.fetch_limit", 10)
	v.SetDefault("workflow.retry_backoff", "exponential")
	v.SetDefault("workflow.retry_initial_delay", 200*time.Millisecond)
	v.SetDefault("workflow.retry_max_delay", 2*time.Second)
	v.SetDefault("workflow.stale_after", 24*time.Hour)
	v.SetDefault("workflow.sweep_interval", 10*time.Minute)

	v.SetDefault("erp.source", ERPSourceCatalog)
	v.SetDefault("erp.failure_rate", 0.0)

	v.SetDefault("security.pii_keys", []string{"vendor_tax_id", "bank_account", "vendor_email", "buyer_email"})

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "DB_PATH")
	v.BindEnv("workflow.approval_threshold", "HITL_APPROVAL_THRESHOLD_USD")
	v.BindEnv("workflow.max_tool_retries", "MAX_TOOL_RETRIES")
	v.BindEnv("erp.source", "ERP_SOURCE")
	v.BindEnv("erp.ledger_path", "ERP_LEDGER_PATH")
	v.BindEnv("erp.failure_rate", "ERP_FAILURE_RATE")
	v.BindEnv("lark.app_id", "LARK_APP_ID")
	v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	v.BindEnv("lark.approver_open_id", "LARK_APPROVER_OPEN_ID")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("logger.level", "LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Workflow.ApprovalThreshold < 0 {
		return fmt.Errorf("workflow.approval_threshold must not be negative")
	}
	if c.Workflow.MaxToolRetries < 0 {
		return fmt.Errorf("workflow.max_tool_retries must not be negative")
	}
	if c.Workflow.FetchLimit <= 0 {
		return fmt.Errorf("workflow.fetch_limit must be positive")
	}
	switch strings.ToLower(c.Workflow.RetryBackoff) {
	case "exponential", "constant":
	default:
		return fmt.Errorf("workflow.retry_backoff must be exponential or constant, got %q", c.Workflow.RetryBackoff)
	}
	if c.Workflow.SweepInterval <= 0 {
		return fmt.Errorf("workflow.sweep_interval must be positive")
	}

	switch c.ERP.Source {
	case ERPSourceCatalog:
	case ERPSourceLedger:
		if c.ERP.LedgerPath == "" {
			return fmt.Errorf("erp.ledger_path is required when erp.source is ledger")
		}
	default:
		return fmt.Errorf("erp.source must be catalog or ledger, got %q", c.ERP.Source)
	}
	if c.ERP.FailureRate < 0 || c.ERP.FailureRate > 1 {
		return fmt.Errorf("erp.failure_rate must be between 0 and 1")
	}

	return nil
}

// NotificationsEnabled reports whether every Lark setting is present
func (c *Config) NotificationsEnabled() bool {
	return c.Lark.AppID != "" && c.Lark.AppSecret != "" && c.Lark.ApproverOpenID != ""
}
