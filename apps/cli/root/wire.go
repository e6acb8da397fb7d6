package root

import (
	tenantcmd "github.com/nimbusworks/tenant-orchestrator/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(tenantcmd.Command())
}
