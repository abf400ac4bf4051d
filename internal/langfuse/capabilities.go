package langfuse

import (
	"strconv"
	"strings"
)

// Version thresholds for optional backend features.
const (
	minVersionV2                  = "2.0.0"
	minVersionTags                = "2.6.3"
	minVersionPrompt              = "2.7.3"
	minVersionCost                = "2.7.3"
	minVersionCompletionStartTime = "2.7.3"
)

// Capabilities is the feature set of a connected backend, resolved once at
// client creation from the declared SDK version and queried as plain
// booleans afterwards.
type Capabilities struct {
	// V2 selects the current submission protocol; below 2.0.0 the reduced
	// legacy path is used.
	V2 bool
	// Tags gates attaching tag lists to new traces.
	Tags bool
	// Prompt gates attaching prompt references to generations.
	Prompt bool
	// Cost gates reporting total cost inside generation usage.
	Cost bool
	// CompletionStartTime gates the time-to-first-token field.
	CompletionStartTime bool
}

// ResolveCapabilities maps a semantic version string to the feature flags it
// unlocks. Unparseable versions resolve to the most conservative set.
func ResolveCapabilities(sdkVersion string) Capabilities {
	return Capabilities{
		V2:                  compareVersions(sdkVersion, minVersionV2) >= 0,
		Tags:                compareVersions(sdkVersion, minVersionTags) >= 0,
		Prompt:              compareVersions(sdkVersion, minVersionPrompt) >= 0,
		Cost:                compareVersions(sdkVersion, minVersionCost) >= 0,
		CompletionStartTime: compareVersions(sdkVersion, minVersionCompletionStartTime) >= 0,
	}
}

// compareVersions compares two semantic version strings numerically on their
// major.minor.patch components, ignoring pre-release and build suffixes.
// Returns -1, 0 or 1. A malformed component parses as 0.
func compareVersions(a, b string) int {
	aParts := versionParts(a)
	bParts := versionParts(b)
	for i := 0; i < 3; i++ {
		if aParts[i] != bParts[i] {
			if aParts[i] < bParts[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func versionParts(version string) [3]int {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if idx := strings.IndexAny(version, "-+"); idx >= 0 {
		version = version[:idx]
	}
	var parts [3]int
	for i, component := range strings.SplitN(version, ".", 3) {
		if i >= 3 {
			break
		}
		n, err := strconv.Atoi(strings.TrimSpace(component))
		if err != nil {
			break
		}
		parts[i] = n
	}
	return parts
}
