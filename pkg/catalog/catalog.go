// Package catalog declares the supported platforms and the OS package set
// each one needs. The data lives in a CUE document, embedded by default and
// replaceable from disk, which is compiled, checked against a schema and
// decoded once at load time.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/devprovision/pkg/engine"
)

//go:embed catalog.cue
var defaultSource []byte

//go:embed schema.cue
var schemaSource []byte

// DefaultName is the filename reported for the embedded catalog.
const DefaultName = "catalog.cue"

// RequiredVersions names the versioned dependencies the planner looks up.
var RequiredVersions = []string{engine.DatabaseDependency}

// Document is the decoded catalog.
type Document struct {
	// Support maps a vendor to its ordered supported codenames.
	Support map[string][]string `json:"support" validate:"required,min=1,dive,min=1,dive,required"`

	// Versions maps a logical versioned dependency to a codename-to-version table.
	Versions map[string]map[string]string `json:"versions" validate:"dive,min=1,dive,required"`

	// Common lists the packages shared by every supported platform, in install order.
	Common []string `json:"common" validate:"required,min=1,dive,required"`

	// Extensions lists the codename-specific packages appended after Common.
	Extensions map[string][]string `json:"extensions" validate:"required,dive,dive,required"`
}

// Catalog implements engine.DependencyCatalog over a validated Document.
type Catalog struct {
	name     string
	doc      Document
	matrix   engine.SupportMatrix
	resolved map[engine.PlatformIdentity][]engine.PackageSpec
}

var _ engine.DependencyCatalog = (*Catalog)(nil)

// Load returns the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(DefaultName, defaultSource)
}

// LoadFile reads and parses a catalog from path.
func LoadFile(path string) (*Catalog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(path, src)
}

// Parse compiles src as CUE, unifies it with the catalog schema, decodes it
// and runs the integrity checks. Every failure is a
// *engine.ConfigurationIntegrityError.
func Parse(name string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, integrityError(name, err)
	}

	val := ctx.CompileBytes(src, cue.Filename(name))
	if err := val.Err(); err != nil {
		return nil, integrityError(name, err)
	}

	val = schema.LookupPath(cue.ParsePath("#Catalog")).Unify(val)
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, integrityError(name, err)
	}

	var doc Document
	if err := val.Decode(&doc); err != nil {
		return nil, integrityError(name, err)
	}

	if err := validator.New().Struct(doc); err != nil {
		return nil, engine.NewConfigurationIntegrityError("%s: %v", name, err)
	}

	return build(name, doc)
}

func integrityError(name string, err error) error {
	return engine.NewConfigurationIntegrityError("%s: %s", name, strings.TrimSpace(cueerrors.Details(err, nil)))
}

// build cross-checks the tables and precomputes every resolution so that
// Resolve never fails for a supported identity.
func build(name string, doc Document) (*Catalog, error) {
	c := &Catalog{
		name:     name,
		doc:      doc,
		matrix:   engine.SupportMatrix{},
		resolved: make(map[engine.PlatformIdentity][]engine.PackageSpec),
	}

	supported := make(map[string]string) // codename -> vendor
	for vendor, codenames := range doc.Support {
		c.matrix[vendor] = append([]string(nil), codenames...)
		for _, codename := range codenames {
			if other, ok := supported[codename]; ok {
				return nil, engine.NewConfigurationIntegrityError(
					"%s: codename %q is listed under both %s and %s", name, codename, other, vendor)
			}
			supported[codename] = vendor
		}
	}

	for _, dep := range RequiredVersions {
		if _, ok := doc.Versions[dep]; !ok {
			return nil, engine.NewConfigurationIntegrityError("%s: no versions declared for %s", name, dep)
		}
	}

	for _, codename := range sortedKeys(doc.Extensions) {
		if _, ok := supported[codename]; !ok {
			return nil, engine.NewConfigurationIntegrityError(
				"%s: extensions declared for unsupported codename %q", name, codename)
		}
	}
	for _, dep := range sortedKeys(doc.Versions) {
		for _, codename := range sortedKeys(doc.Versions[dep]) {
			if _, ok := supported[codename]; !ok {
				return nil, engine.NewConfigurationIntegrityError(
					"%s: %s version declared for unsupported codename %q", name, dep, codename)
			}
		}
	}

	for _, id := range c.matrix.Identities() {
		ext, ok := doc.Extensions[id.Codename]
		if !ok {
			return nil, engine.NewConfigurationIntegrityError(
				"%s: no extensions entry for supported platform %s", name, id)
		}
		for _, dep := range sortedKeys(doc.Versions) {
			if _, ok := doc.Versions[dep][id.Codename]; !ok {
				return nil, engine.NewConfigurationIntegrityError(
					"%s: no %s version for supported platform %s", name, dep, id)
			}
		}

		specs := make([]engine.PackageSpec, 0, len(doc.Common)+len(ext))
		seen := make(map[string]bool, cap(specs))
		for _, pkg := range append(append([]string(nil), doc.Common...), ext...) {
			if seen[pkg] {
				return nil, engine.NewConfigurationIntegrityError(
					"%s: package %q appears twice in the resolution for %s", name, pkg, id)
			}
			seen[pkg] = true
			specs = append(specs, engine.PackageSpec{Name: pkg})
		}
		c.resolved[id] = specs
	}

	return c, nil
}

// Name returns the file the catalog was loaded from.
func (c *Catalog) Name() string {
	return c.name
}

// Document returns the decoded catalog tables.
func (c *Catalog) Document() Document {
	return c.doc
}

// SupportMatrix returns a copy of the supported vendor/codename table.
func (c *Catalog) SupportMatrix() engine.SupportMatrix {
	out := make(engine.SupportMatrix, len(c.matrix))
	for vendor, codenames := range c.matrix {
		out[vendor] = append([]string(nil), codenames...)
	}
	return out
}

// Resolve returns the ordered package set for id: the common packages
// followed by the codename's extensions. It panics for an identity outside
// the support matrix; callers validate the platform first.
func (c *Catalog) Resolve(id engine.PlatformIdentity) []engine.PackageSpec {
	specs, ok := c.resolved[id]
	if !ok {
		panic(fmt.Sprintf("catalog: resolve called for unsupported platform %s", id))
	}
	return append([]engine.PackageSpec(nil), specs...)
}

// Version returns the version of dependency on a supported identity. It
// panics when the mapping is missing.
func (c *Catalog) Version(dependency string, id engine.PlatformIdentity) string {
	if !c.matrix.Supports(id) {
		panic(fmt.Sprintf("catalog: version of %s requested for unsupported platform %s", dependency, id))
	}
	v, ok := c.doc.Versions[dependency][id.Codename]
	if !ok {
		panic(fmt.Sprintf("catalog: no %s version for %s", dependency, id))
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
