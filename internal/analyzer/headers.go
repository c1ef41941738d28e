package analyzer

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shyim/carbon-analyzer/internal/models"
)

// gradeCaching rates the document response headers. A freshness lifetime
// earns Good unless no-cache forces revalidation, which caps the grade at Fair.
func gradeCaching(h http.Header, now time.Time) string {
	directives := parseCacheControl(h.Get("Cache-Control"))

	if _, ok := directives["no-store"]; ok {
		return models.CachingPoor
	}
	_, noCache := directives["no-cache"]
	if hasFreshness(h, directives, now) {
		if noCache {
			return models.CachingFair
		}
		return models.CachingGood
	}
	if h.Get("ETag") != "" || h.Get("Last-Modified") != "" {
		return models.CachingFair
	}
	return models.CachingPoor
}

func hasFreshness(h http.Header, directives map[string]string, now time.Time) bool {
	for _, key := range []string{"s-maxage", "max-age"} {
		if v, ok := directives[key]; ok {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return true
			}
		}
	}
	if exp := h.Get("Expires"); exp != "" {
		if t, err := http.ParseTime(exp); err == nil && t.After(now) {
			return true
		}
	}
	return false
}

func parseCacheControl(v string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, _ := strings.Cut(part, "=")
		out[strings.ToLower(strings.TrimSpace(key))] = strings.Trim(strings.TrimSpace(val), `"`)
	}
	return out
}

type edgeInfo struct {
	detected bool
	provider string
	pop      string
}

// detectCDN recognises the response headers edge networks stamp on
// responses. pop is the point of presence when the provider exposes one.
func detectCDN(h http.Header) edgeInfo {
	switch {
	case h.Get("Cf-Ray") != "":
		// "8a1b2c3d4e5f6789-FRA"
		_, pop, _ := strings.Cut(h.Get("Cf-Ray"), "-")
		return edgeInfo{detected: true, provider: "cloudflare", pop: pop}
	case h.Get("X-Amz-Cf-Pop") != "" || h.Get("X-Amz-Cf-Id") != "":
		return edgeInfo{detected: true, provider: "cloudfront", pop: h.Get("X-Amz-Cf-Pop")}
	case h.Get("X-Vercel-Id") != "":
		// "fra1::iad1::abcde-1700000000000-0123456789ab"
		pop, _, _ := strings.Cut(h.Get("X-Vercel-Id"), "::")
		return edgeInfo{detected: true, provider: "vercel", pop: pop}
	case h.Get("X-Nf-Request-Id") != "":
		return edgeInfo{detected: true, provider: "netlify"}
	case h.Get("X-Azure-Ref") != "":
		return edgeInfo{detected: true, provider: "azure"}
	case h.Get("X-Fastly-Request-Id") != "" || (strings.Contains(strings.ToLower(h.Get("Via")), "varnish") && h.Get("X-Served-By") != ""):
		// "cache-fra19120-FRA"
		served := h.Get("X-Served-By")
		pop := ""
		if i := strings.LastIndex(served, "-"); i >= 0 {
			pop = served[i+1:]
		}
		return edgeInfo{detected: true, provider: "fastly", pop: pop}
	}

	for key := range h {
		if strings.HasPrefix(strings.ToLower(key), "x-akamai") {
			return edgeInfo{detected: true, provider: "akamai"}
		}
	}

	server := strings.ToLower(h.Get("Server"))
	for _, p := range []string{"cloudflare", "akamaighost", "cloudfront", "netlify", "bunnycdn"} {
		if strings.Contains(server, p) {
			return edgeInfo{detected: true, provider: p}
		}
	}
	return edgeInfo{}
}
