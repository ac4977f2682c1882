// Package container wires the reconciliation service together and owns the
// lifecycle of its components.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
)

// Config holds all configuration for the Container.
type Config struct {
	Database DatabaseConfig
	Workflow WorkflowConfig
	ERP      ERPConfig
	Lark     LarkConfig

	// PIIKeys are redacted from HTTP responses
	PIIKeys []string
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// WorkflowConfig holds engine and tool retry settings.
type WorkflowConfig struct {
	// ApprovalThreshold is the amount at or above which a payment waits for a human
	ApprovalThreshold entity.Money

	// MaxAttempts per tool call; values below one mean a single attempt
	MaxAttempts int

	FetchLimit      int
	ConstantBackoff bool
	InitialDelay    time.Duration
	MaxDelay        time.Duration

	// StaleAfter is how long an approval may wait before a reminder is sent
	StaleAfter    time.Duration
	SweepInterval time.Duration
}

// ERPConfig selects the invoice and purchase order source.
type ERPConfig struct {
	UseLedger   bool
	LedgerPath  string
	FailureRate float64
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	AppID          string
	AppSecret      string
	ApproverOpenID string
}

// DefaultConfig returns a configuration suitable for local runs.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/checkpoints.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Workflow: WorkflowConfig{
			ApprovalThreshold: 500000,
			MaxAttempts:       3,
			FetchLimit:        10,
			InitialDelay:      200 * time.Millisecond,
			MaxDelay:          2 * time.Second,
			StaleAfter:        24 * time.Hour,
			SweepInterval:     10 * time.Minute,
		},
	}
}

// Validate checks the settings the container cannot start without.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Workflow.ApprovalThreshold < 0 {
		return fmt.Errorf("approval threshold must not be negative")
	}
	if c.Workflow.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.ERP.UseLedger && c.ERP.LedgerPath == "" {
		return fmt.Errorf("ledger path is required when the ledger source is enabled")
	}
	return nil
}
