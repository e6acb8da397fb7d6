package sqlassets

import _ "embed"

//go:embed schema/platform/tenants.sql
var TenantsSQL string

//go:embed schema/platform/route_fragments.sql
var RouteFragmentsSQL string

//go:embed schema/platform/tenant_deployments.sql
var TenantDeploymentsSQL string
