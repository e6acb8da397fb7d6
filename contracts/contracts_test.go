package contracts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrchestratorSpec(t *testing.T) {
	spec, err := OrchestratorSpec()
	require.NoError(t, err)
	require.NotNil(t, spec.Paths.Find("/tenants/onboard"))
	require.NotNil(t, spec.Paths.Find("/tenants/{tenantId}/deprovision"))
	require.NotNil(t, spec.Paths.Find("/tenants/{tenantId}/rollback"))
	require.NotNil(t, spec.Paths.Find("/tenants/{tenantId}/services/{service}/redeploy"))
}
