package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/devprovision/pkg/engine"
)

var (
	trusty = engine.PlatformIdentity{Vendor: "Ubuntu", Codename: "trusty"}
	xenial = engine.PlatformIdentity{Vendor: "Ubuntu", Codename: "xenial"}
)

func names(specs []engine.PackageSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}

func TestLoadEmbedded(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, engine.SupportMatrix{"Ubuntu": {"trusty", "xenial"}}, c.SupportMatrix())
	assert.Equal(t, DefaultName, c.Name())
	assert.Equal(t, "9.3", c.Version(engine.DatabaseDependency, trusty))
	assert.Equal(t, "9.5", c.Version(engine.DatabaseDependency, xenial))
}

func TestResolveXenial(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	got := names(c.Resolve(xenial))
	common := c.Document().Common

	require.Len(t, got, len(common)+3)
	assert.Equal(t, common, got[:len(common)])
	assert.Equal(t, []string{
		"postgresql-9.5",
		"postgresql-9.5-tsearch-extras",
		"postgresql-9.5-pgroonga",
	}, got[len(common):])

	assert.Equal(t, "closure-compiler", got[0])
	assert.Contains(t, got, "python3-dev")
	assert.Contains(t, got, "netcat")
}

func TestResolveDiffersOnlyInExtensions(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	a := names(c.Resolve(trusty))
	b := names(c.Resolve(xenial))
	require.Equal(t, len(a), len(b))

	n := len(c.Document().Common)
	assert.Equal(t, a[:n], b[:n])
	assert.Equal(t, "postgresql-9.3", a[n])
	assert.Equal(t, "postgresql-9.5", b[n])
}

func TestResolveReturnsCopy(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	first := c.Resolve(xenial)
	first[0].Name = "mutated"
	assert.Equal(t, "closure-compiler", c.Resolve(xenial)[0].Name)
}

func TestResolveEveryIdentity(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	for _, id := range c.SupportMatrix().Identities() {
		specs := c.Resolve(id)
		assert.NotEmpty(t, specs, id.String())

		seen := map[string]bool{}
		for _, s := range specs {
			assert.False(t, seen[s.Name], "duplicate %s in %s", s.Name, id)
			seen[s.Name] = true
		}
	}
}

func TestResolveUnsupportedPanics(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Panics(t, func() {
		c.Resolve(engine.PlatformIdentity{Vendor: "Ubuntu", Codename: "bionic"})
	})
	assert.Panics(t, func() {
		c.Version(engine.DatabaseDependency, engine.PlatformIdentity{Vendor: "Debian", Codename: "stretch"})
	})
	assert.Panics(t, func() {
		c.Version("mysql", xenial)
	})
}

func TestParseIntegrityFailures(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "extensions for unsupported codename",
			src: `
support: Ubuntu: ["xenial"]
versions: postgresql: xenial: "9.5"
common: ["git"]
extensions: {
	xenial: ["postgresql-9.5"]
	bionic: ["postgresql-10"]
}
`,
		},
		{
			name: "version for unsupported codename",
			src: `
support: Ubuntu: ["xenial"]
versions: postgresql: {xenial: "9.5", trusty: "9.3"}
common: ["git"]
extensions: xenial: ["postgresql-9.5"]
`,
		},
		{
			name: "supported codename without extensions",
			src: `
support: Ubuntu: ["trusty", "xenial"]
versions: postgresql: {xenial: "9.5", trusty: "9.3"}
common: ["git"]
extensions: xenial: ["postgresql-9.5"]
`,
		},
		{
			name: "supported codename without database version",
			src: `
support: Ubuntu: ["trusty", "xenial"]
versions: postgresql: xenial: "9.5"
common: ["git"]
extensions: {
	trusty: ["postgresql-9.3"]
	xenial: ["postgresql-9.5"]
}
`,
		},
		{
			name: "database version table missing",
			src: `
support: Ubuntu: ["xenial"]
versions: {}
common: ["git"]
extensions: xenial: ["postgresql-9.5"]
`,
		},
		{
			name: "duplicate package in resolution",
			src: `
support: Ubuntu: ["xenial"]
versions: postgresql: xenial: "9.5"
common: ["git", "curl"]
extensions: xenial: ["curl"]
`,
		},
		{
			name: "codename shared by two vendors",
			src: `
support: {
	Ubuntu: ["xenial"]
	Mint: ["xenial"]
}
versions: postgresql: xenial: "9.5"
common: ["git"]
extensions: xenial: ["postgresql-9.5"]
`,
		},
		{
			name: "malformed version",
			src: `
support: Ubuntu: ["xenial"]
versions: postgresql: xenial: "nine"
common: ["git"]
extensions: xenial: ["postgresql-9.5"]
`,
		},
		{
			name: "unknown top-level field",
			src: `
support: Ubuntu: ["xenial"]
versions: postgresql: xenial: "9.5"
common: ["git"]
extensions: xenial: ["postgresql-9.5"]
mirrors: ["http://archive.ubuntu.com"]
`,
		},
		{
			name: "empty common set",
			src: `
support: Ubuntu: ["xenial"]
versions: postgresql: xenial: "9.5"
common: []
extensions: xenial: ["postgresql-9.5"]
`,
		},
		{
			name: "syntax error",
			src:  `support: Ubuntu: [`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test.cue", []byte(tt.src))
			require.Error(t, err)

			var integrity *engine.ConfigurationIntegrityError
			assert.True(t, errors.As(err, &integrity), "got %T: %v", err, err)
			assert.Equal(t, engine.ErrorKindConfigurationIntegrity, engine.KindOf(err))
		})
	}
}

func TestParseMinimal(t *testing.T) {
	c, err := Parse("min.cue", []byte(`
support: Debian: ["stretch"]
versions: postgresql: stretch: "9.6"
common: ["git"]
extensions: stretch: ["postgresql-\(versions.postgresql.stretch)"]
`))
	require.NoError(t, err)

	id := engine.PlatformIdentity{Vendor: "Debian", Codename: "stretch"}
	assert.Equal(t, []string{"git", "postgresql-9.6"}, names(c.Resolve(id)))
	assert.Equal(t, "9.6", c.Version(engine.DatabaseDependency, id))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.cue")
	require.NoError(t, os.WriteFile(path, defaultSource, 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, c.Name())
	assert.True(t, c.SupportMatrix().Supports(xenial))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}
