package service

import "strings"

// crawlerMarkers are lowercase User-Agent fragments identifying common bots
// and crawlers. The list is intentionally small; callers that sit behind a
// dedicated bot-detection layer should pass their own verdict instead.
var crawlerMarkers = []string{
	"bot",
	"crawl",
	"spider",
	"slurp",
	"mediapartners",
	"facebookexternalhit",
	"headlesschrome",
	"lighthouse",
	"pingdom",
	"wget",
	"curl",
	"python-requests",
}

// DetectCrawler reports whether a User-Agent string looks like an automated
// client. An empty User-Agent is treated as a crawler.
func DetectCrawler(userAgent string) bool {
	if userAgent == "" {
		return true
	}
	ua := strings.ToLower(userAgent)
	for _, marker := range crawlerMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
