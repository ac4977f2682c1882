package config

import (
	"strings"

	"github.com/garyjia/invoice-reconciler/internal/container"
	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
)

// ToContainerConfig converts the file-based Config into the container's
// configuration structure
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Workflow: container.WorkflowConfig{
			ApprovalThreshold: entity.MoneyFromFloat(c.Workflow.ApprovalThreshold),
			MaxAttempts:       c.Workflow.MaxToolRetries,
			FetchLimit:        c.Workflow.FetchLimit,
			ConstantBackoff:   strings.EqualFold(c.Workflow.RetryBackoff, "constant"),
			InitialDelay:      c.Workflow.RetryInitialDelay,
			MaxDelay:          c.Workflow.RetryMaxDelay,
			StaleAfter:        c.Workflow.StaleAfter,
			SweepInterval:     c.Workflow.SweepInterval,
		},
		ERP: container.ERPConfig{
			UseLedger:   c.ERP.Source == ERPSourceLedger,
			LedgerPath:  c.ERP.LedgerPath,
			FailureRate: c.ERP.FailureRate,
		},
		Lark: container.LarkConfig{
			AppID:          c.Lark.AppID,
			AppSecret:      c.Lark.AppSecret,
			ApproverOpenID: c.Lark.ApproverOpenID,
		},
		PIIKeys: c.Security.PIIKeys,
	}
}
