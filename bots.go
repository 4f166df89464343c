package folio

import "strings"

// crawlerMarkers are lowercase User-Agent fragments of crawlers and link
// preview fetchers.
var crawlerMarkers = []string{
	"bot", "crawl", "spider", "slurp", "scrape",
	"yandex", "baidu", "facebookexternalhit", "preview",
}

// isCrawler reports whether ua looks automated. An empty User-Agent counts
// as automated.
func isCrawler(ua string) bool {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return true
	}
	for _, m := range crawlerMarkers {
		if strings.Contains(ua, m) {
			return true
		}
	}
	return false
}
