package tenant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme Corp!", "acmecorp"},
		{"acmecorp", "acmecorp"},
		{"  Globex  2000  ", "globex2000"},
		{"Ümlaut GmbH", "mlautgmbh"},
		{"---", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Slug(tc.in), "slug of %q", tc.in)
	}
}

func TestSlugIdempotent(t *testing.T) {
	for _, in := range []string{"Acme Corp!", "Foo-Bar Inc.", "x9", ""} {
		once := Slug(in)
		require.Equal(t, once, Slug(once))
	}
}

func TestDerivedNames(t *testing.T) {
	require.Equal(t, "tenant_acmecorp", SchemaName("acmecorp"))
	require.Equal(t, "tenant_acmecorp_rw", RoleName("acmecorp"))
	require.Equal(t, "dev/acmecorp/", StoragePrefix("dev/", "acmecorp"))
	require.Equal(t, "SiloTable-acmecorp", ResourceName("SiloTable", "acmecorp"))
	require.Equal(t, "/acmecorp/products", PathPrefix("acmecorp", "/products/"))
}
