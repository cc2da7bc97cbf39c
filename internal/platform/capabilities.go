package platform

import (
	"strconv"
	"strings"

	"github.com/mssola/useragent"
)

// CapabilitiesFor guesses which entry kinds a browser can observe from its
// user agent. It is only consulted when the page did not report
// PerformanceObserver.supportedEntryTypes itself.
func CapabilitiesFor(userAgentString string) []Kind {
	if userAgentString == "" {
		return AllKinds
	}

	ua := useragent.New(userAgentString)
	if ua.Bot() {
		return []Kind{KindNavigation}
	}

	name, version := ua.Browser()
	switch name {
	case "Firefox":
		kinds := []Kind{KindPaint, KindFirstInput, KindNavigation}
		// largest-contentful-paint shipped in Firefox 122
		if majorVersion(version) >= 122 {
			kinds = append(kinds, KindLargestContentfulPaint)
		}
		return kinds
	case "Safari":
		return []Kind{KindPaint, KindNavigation}
	case "Internet Explorer":
		return []Kind{KindNavigation}
	default:
		return AllKinds
	}
}

// ParseKinds converts supportedEntryTypes strings to known kinds, dropping the
// ones the agent has no use for (resource, mark, measure, ...).
func ParseKinds(types []string) []Kind {
	kinds := make([]Kind, 0, len(types))
	for _, t := range types {
		k := Kind(t)
		for _, known := range AllKinds {
			if k == known {
				kinds = append(kinds, k)
				break
			}
		}
	}
	return kinds
}

func majorVersion(version string) int {
	major, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0
	}
	return n
}
