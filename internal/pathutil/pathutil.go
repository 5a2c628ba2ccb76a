// Package pathutil provides workspace identifier and store-path utilities.
package pathutil

import (
	"path/filepath"
	"strings"
)

// NormalizeWorkspaceID canonicalizes a workspace identifier so that two
// identifiers differing only by a trailing slash resolve to the same
// workspace. The identifier is usually a URI like "file:///home/dev/proj"
// but plain paths are accepted too.
func NormalizeWorkspaceID(id string) string {
	id = strings.TrimSpace(id)
	for len(id) > 1 && strings.HasSuffix(id, "/") {
		id = strings.TrimSuffix(id, "/")
	}
	return id
}

// SameWorkspaceID reports whether two identifiers name the same workspace
// after trailing-slash normalization.
func SameWorkspaceID(a, b string) bool {
	return NormalizeWorkspaceID(a) == NormalizeWorkspaceID(b)
}

// WorkspacePath strips a uri scheme prefix from a workspace identifier,
// returning the filesystem-path part. "file:///home/dev/proj" becomes
// "/home/dev/proj"; identifiers without a scheme pass through unchanged.
func WorkspacePath(id string) string {
	id = NormalizeWorkspaceID(id)
	if i := strings.Index(id, "://"); i >= 0 {
		return id[i+len("://"):]
	}
	return id
}

// EncodePath converts a workspace identifier to a flat string safe for use
// as a directory name inside the host editor's chat store. This matches the
// encoding the editor uses for per-workspace session storage.
//
//	file:///Users/dev/proj → -Users-dev-proj
func EncodePath(id string) string {
	p := WorkspacePath(id)
	return strings.ReplaceAll(filepath.ToSlash(filepath.Clean(p)), "/", "-")
}
