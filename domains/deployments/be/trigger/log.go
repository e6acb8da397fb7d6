package trigger

import (
	"context"

	"go.uber.org/zap"

	"github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/service"
)

// LogDeployer records deploy and teardown triggers without calling any hook.
// Used for local development where no downstream deployers run.
type LogDeployer struct {
	logger *zap.Logger
}

func NewLogDeployer(logger *zap.Logger) *LogDeployer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDeployer{logger: logger}
}

func (d *LogDeployer) Deploy(_ context.Context, params service.JobParams) error {
	d.logger.Info("deploy trigger",
		zap.String("tenant_id", params.TenantID),
		zap.String("service", params.Service),
		zap.String("image_ref", params.ImageRef),
	)
	return nil
}

func (d *LogDeployer) Teardown(_ context.Context, params service.JobParams) error {
	d.logger.Info("teardown trigger",
		zap.String("tenant_id", params.TenantID),
		zap.String("service", params.Service),
	)
	return nil
}

var _ service.Deployer = (*LogDeployer)(nil)
