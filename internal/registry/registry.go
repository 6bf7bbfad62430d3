// Package registry defines the interfaces the core depends on but does
// not own: the compiler registry (polymorphic over resource type) and
// the resource descriptor loader. Both are out of scope per the core
// specification; this package also provides small in-memory reference
// implementations used by tests and the standalone CLI.
package registry

import (
	"os"

	"github.com/relicforge/resourceserver/internal/resource"
)

// Compiler is the only core-visible contract a per-type compiler
// object must satisfy: given a resource, report the other resources
// that must be present at runtime for it to load correctly.
type Compiler interface {
	InstallDependencies(id resource.ID) ([]resource.ID, error)
}

// CompilerRegistry resolves a Compiler for a resource's type tag.
// Nodes with no registered compiler terminate packaging traversal.
type CompilerRegistry interface {
	CompilerFor(typeTag string) (Compiler, bool)
}

// DescriptorLoader parses a resource descriptor file and reports the
// compile dependencies it declares. Descriptor load failure is
// non-fatal to the caller: the request proceeds with an empty
// dependency set.
type DescriptorLoader interface {
	// CompileDependencies returns the source paths (relative to the
	// source-data root) that the descriptor at sourceFile declares as
	// compile-time inputs.
	CompileDependencies(sourceFile string) ([]string, error)
	// IsEntityDescriptor reports whether resources of typeTag are
	// entity descriptors, which carry no resource descriptor file and
	// so are never fed through CompileDependencies.
	IsEntityDescriptor(typeTag string) bool
}

// MemoryRegistry is a simple in-memory CompilerRegistry keyed by type
// tag, suitable for tests and the reference CLI; a real deployment
// backs this with the engine's reflection-based type registry.
type MemoryRegistry struct {
	compilers map[string]Compiler
}

// NewMemoryRegistry returns an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{compilers: make(map[string]Compiler)}
}

// Register installs a Compiler for typeTag.
func (r *MemoryRegistry) Register(typeTag string, compiler Compiler) {
	r.compilers[typeTag] = compiler
}

// CompilerFor implements CompilerRegistry.
func (r *MemoryRegistry) CompilerFor(typeTag string) (Compiler, bool) {
	c, ok := r.compilers[typeTag]
	return c, ok
}

// StaticCompiler is a Compiler whose install dependencies are fixed at
// construction, useful for tests and for map-type resources whose
// dependency set is precomputed by a tool outside this core.
type StaticCompiler struct {
	Deps []resource.ID
}

// InstallDependencies implements Compiler.
func (c StaticCompiler) InstallDependencies(resource.ID) ([]resource.ID, error) {
	return c.Deps, nil
}

// NullDescriptorLoader treats every resource as having no declared
// compile dependencies and no entity-descriptor types. It is the
// default used when no descriptor loader is configured.
type NullDescriptorLoader struct{}

// CompileDependencies implements DescriptorLoader.
func (NullDescriptorLoader) CompileDependencies(string) ([]string, error) { return nil, nil }

// IsEntityDescriptor implements DescriptorLoader.
func (NullDescriptorLoader) IsEntityDescriptor(string) bool { return false }

// DelimitedFileDescriptorLoader reads a descriptor file's compile
// dependencies as one source path per line, ignoring blank lines and
// lines starting with '#'. It is a minimal stand-in for the real
// reflection-driven descriptor format, which lives outside this core.
type DelimitedFileDescriptorLoader struct {
	EntityTypeTags map[string]bool
}

// CompileDependencies implements DescriptorLoader.
func (l DelimitedFileDescriptorLoader) CompileDependencies(sourceFile string) ([]string, error) {
	data, err := os.ReadFile(sourceFile)
	if err != nil {
		return nil, err
	}

	var deps []string
	line := make([]byte, 0, 64)
	flush := func() {
		s := string(line)
		line = line[:0]
		if s == "" || s[0] == '#' {
			return
		}
		deps = append(deps, s)
	}

	for _, b := range data {
		if b == '\n' {
			flush()
			continue
		}
		if b == '\r' {
			continue
		}
		line = append(line, b)
	}
	flush()

	return deps, nil
}

// IsEntityDescriptor implements DescriptorLoader.
func (l DelimitedFileDescriptorLoader) IsEntityDescriptor(typeTag string) bool {
	return l.EntityTypeTags[typeTag]
}
