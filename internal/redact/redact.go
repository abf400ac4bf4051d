package redact

import (
	"regexp"
	"strings"
)

const credentialRedacted = "[CREDENTIAL_REDACTED]"

// sensitiveMetadataKeys are metadata fields whose values are API credentials
// or were derived from them. Their values are masked before submission;
// the keys themselves are preserved so dashboards keyed on them keep working.
var sensitiveMetadataKeys = map[string]struct{}{
	"user_api_key":   {},
	"api_key":        {},
	"authorization":  {},
	"secret_key":     {},
	"gateway_secret": {},
}

// credentialPatterns detects common credential formats that must never reach
// the tracing backend inside free-form metadata values.
var credentialPatterns = []*regexp.Regexp{
	// API key prefixes: sk_, pk_, rk_, xox*_, ghp/gho/ghu/ghs/ghr_, pat_
	regexp.MustCompile(`(?i)\b(?:sk|pk|rk|xox[baprs]|gh[pousr]|pat)_[a-z0-9_-]{8,}\b`),
	// JWT-like tokens (three base64url segments separated by dots)
	regexp.MustCompile(`(?i)eyj[a-z0-9_-]{8,}\.[a-z0-9_-]{8,}\.[a-z0-9_-]{8,}`),
	// Bearer token in header-like strings
	regexp.MustCompile(`(?i)\bBearer\s+[a-z0-9_.\-/+=]{8,}\b`),
	// Connection string secrets: password=..., secret=..., token=...
	regexp.MustCompile(`(?i)\b(?:password|secret|token)\s*=\s*\S{4,}`),
}

// Metadata returns a copy of metadata with credential-bearing values masked.
// It is pure: the input map is never mutated and unknown keys are never
// dropped.
func Metadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if _, sensitive := sensitiveMetadataKeys[strings.ToLower(key)]; sensitive {
			out[key] = credentialRedacted
			continue
		}
		if s, ok := value.(string); ok {
			out[key] = ScrubCredentials(s)
			continue
		}
		out[key] = value
	}
	return out
}

// ContainsCredential reports whether s matches any known credential pattern.
// Strings shorter than 8 chars are skipped as a fast path since no credential
// pattern can match them.
func ContainsCredential(s string) bool {
	if len(s) < 8 {
		return false
	}
	for _, p := range credentialPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// ScrubCredentials replaces all detected credential patterns in s with
// [CREDENTIAL_REDACTED]. If no patterns match, s is returned unchanged with
// no allocation.
func ScrubCredentials(s string) string {
	if len(s) < 8 {
		return s
	}
	result := s
	changed := false
	for _, p := range credentialPatterns {
		if p.MatchString(result) {
			result = p.ReplaceAllString(result, credentialRedacted)
			changed = true
		}
	}
	if !changed {
		return s
	}
	return strings.TrimSpace(result)
}
