// Package pathutil matches URL paths against route prefixes. The telemetry
// layer uses it to group backend API calls (ingestion, prompts, projects)
// under low-cardinality span names.
package pathutil

import "strings"

// NormalizePrefix returns the prefix with a leading slash and no trailing
// slash, so "/api/public/ingestion/" and "api/public/ingestion" compare equal.
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if len(prefix) > 1 {
		prefix = strings.TrimRight(prefix, "/")
	}
	return prefix
}

// HasPathPrefix reports whether path equals prefix or sits below it. Matching
// is segment-aware: "/api/public/ingestion-v2" is not under
// "/api/public/ingestion".
func HasPathPrefix(path, prefix string) bool {
	prefix = NormalizePrefix(prefix)
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// StripPathPrefix removes a matching prefix from path, returning "/" when the
// whole path was the prefix and the path unchanged when it does not match.
func StripPathPrefix(path, prefix string) string {
	if !HasPathPrefix(path, prefix) {
		return path
	}

	stripped := strings.TrimPrefix(path, NormalizePrefix(prefix))
	if stripped == "" {
		return "/"
	}
	if !strings.HasPrefix(stripped, "/") {
		return "/" + stripped
	}
	return stripped
}
