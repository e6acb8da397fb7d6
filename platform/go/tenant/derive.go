package tenant

import "strings"

// Slug derives the canonical tenant identifier from a human-entered company
// name: lower-cased with every non-alphanumeric rune stripped. The result is
// deterministic and idempotent (Slug(Slug(x)) == Slug(x)), which makes it safe
// to use as the registry partition key and as a URL path segment.
func Slug(companyName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(companyName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SchemaName returns the per-tenant Postgres schema used for silo data stores.
func SchemaName(tenantID string) string {
	return "tenant_" + tenantID
}

// RoleName returns the per-tenant Postgres role owning the tenant schema.
func RoleName(tenantID string) string {
	return "tenant_" + tenantID + "_rw"
}

// StoragePrefix returns `<envKey>/<tenantId>/`, the object-store prefix that
// scopes a tenant's silo storage.
func StoragePrefix(envKey, tenantID string) string {
	envKey = strings.TrimSuffix(envKey, "/")
	return envKey + "/" + tenantID + "/"
}

// ResourceName templates a provider resource name as `<kind>-<tenantId>`.
func ResourceName(kind, tenantID string) string {
	return kind + "-" + tenantID
}

// PathPrefix returns the shared-router path `/{tenantId}/{servicePrefix}`
// exposing one downstream service for one tenant. Prefixes from distinct
// tenants can never collide because the first segment is the tenant id.
func PathPrefix(tenantID, servicePrefix string) string {
	servicePrefix = strings.Trim(servicePrefix, "/")
	return "/" + tenantID + "/" + servicePrefix
}
