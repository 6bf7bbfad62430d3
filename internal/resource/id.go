// Package resource defines the canonical resource identifier and the
// compilation request record that the rest of the server operates on.
package resource

import (
	"fmt"
	"path/filepath"
	"strings"
)

// typeTagLength is the fixed width of a resource's four-character type tag.
const typeTagLength = 4

// ID is a canonical, type-tagged data path identifying a single asset,
// e.g. "msh4:characters/hero/hero.msh". It resolves deterministically
// to exactly one file under any given filesystem root.
type ID struct {
	typeTag string
	path    string
}

// ParseID parses the canonical "type_four_cc:virtual/path" form. An
// empty, malformed, or tag-less string yields a zero-value ID and an
// error describing why it is invalid.
func ParseID(raw string) (ID, error) {
	idx := strings.IndexByte(raw, ':')
	if idx < 0 {
		return ID{}, fmt.Errorf("invalid resource ID (%s): missing type tag separator", raw)
	}

	tag := raw[:idx]
	path := raw[idx+1:]

	if len(tag) != typeTagLength {
		return ID{}, fmt.Errorf("invalid resource ID (%s): type tag must be %d characters", raw, typeTagLength)
	}

	if path == "" || strings.HasPrefix(path, "/") || strings.Contains(path, "..") {
		return ID{}, fmt.Errorf("invalid resource ID (%s): malformed virtual path", raw)
	}

	return ID{typeTag: tag, path: filepath.ToSlash(path)}, nil
}

// IDFromDataPath maps a source-file path relative to the source data
// root into a resource ID, using the file extension as the type tag.
// It is used by the watcher bridge when a changed file might itself be
// a compilable resource descriptor rather than a compile dependency.
func IDFromDataPath(relPath string, validTag func(tag string) bool) (ID, bool) {
	ext := strings.TrimPrefix(filepath.Ext(relPath), ".")
	if len(ext) != typeTagLength || (validTag != nil && !validTag(ext)) {
		return ID{}, false
	}

	virtual := strings.TrimSuffix(filepath.ToSlash(relPath), "."+ext)
	if virtual == "" {
		return ID{}, false
	}

	return ID{typeTag: ext, path: virtual + "." + ext}, true
}

// TypeTag returns the four-character type tag.
func (id ID) TypeTag() string { return id.typeTag }

// IsValid reports whether the ID carries a well-formed tag and path.
func (id ID) IsValid() bool {
	return len(id.typeTag) == typeTagLength && id.path != ""
}

// String renders the canonical "type_four_cc:virtual/path" form.
func (id ID) String() string {
	if !id.IsValid() {
		return ""
	}
	return id.typeTag + ":" + id.path
}

// DataPath returns the virtual path portion, as passed verbatim to the
// compiler executable's command line.
func (id ID) DataPath() string { return id.path }

// SourcePath resolves this ID to an absolute filesystem path under the
// given source-data root.
func (id ID) SourcePath(sourceRoot string) string {
	return filepath.Join(sourceRoot, filepath.FromSlash(id.path))
}

// DestinationPath resolves this ID to an absolute filesystem path under
// the given compiled- or packaged-resource root.
func (id ID) DestinationPath(outputRoot string) string {
	return filepath.Join(outputRoot, filepath.FromSlash(id.path))
}

// Equal reports whether two IDs are the same resource.
func (id ID) Equal(other ID) bool {
	return id.typeTag == other.typeTag && id.path == other.path
}
