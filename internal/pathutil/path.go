// Package pathutil provides path manipulation for slash-separated archive paths.
package pathutil

import (
	"path"
	"strings"
)

// Normalize converts a URI fragment or listing path to the canonical
// inner-archive form: forward slashes, no leading or trailing slash, no "."
// components or doubled slashes (tar listings routinely carry a "./" prefix).
// An empty or "/" input normalizes to "." (the archive root).
func Normalize(fragment string) string {
	fragment = strings.ReplaceAll(fragment, "\\", "/")
	// Anchoring at "/" keeps ".." from escaping above the archive root.
	fragment = strings.TrimPrefix(path.Clean("/"+fragment), "/")
	if fragment == "" {
		return "."
	}
	return fragment
}

// Base returns the last element of a slash-separated path.
// If path is empty or ".", it returns ".".
func Base(path string) string {
	if path == "" || path == "." {
		return "."
	}
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Split breaks a normalized inner path into its components.
// Split(".") returns nil: the root has no components.
func Split(path string) []string {
	if path == "" || path == "." {
		return nil
	}
	return strings.Split(path, "/")
}

// Join appends name to dir with a slash separator. The root ("." or empty)
// joins to just name.
func Join(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}
