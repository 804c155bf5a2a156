package transport

import (
	"net/http"
	"path"
)

// staticExtensions are asset types that downstream caches may hold for a
// long time.
var staticExtensions = map[string]bool{
	".css":   true,
	".js":    true,
	".png":   true,
	".jpg":   true,
	".jpeg":  true,
	".gif":   true,
	".svg":   true,
	".webp":  true,
	".ico":   true,
	".woff":  true,
	".woff2": true,
}

const (
	staticCacheControl = "public, max-age=31536000, immutable"
	apiCacheControl    = "max-age=60, stale-while-revalidate=300"
)

// hintTransport stamps Cache-Control hints onto GET requests: a long
// policy for static assets, a short stale-while-revalidate window for API
// reads. An explicitly set header is left alone.
type hintTransport struct {
	next http.RoundTripper
}

func (t *hintTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || req.Header.Get("Cache-Control") != "" {
		return t.next.RoundTrip(req)
	}

	out := req.Clone(req.Context())
	if staticExtensions[path.Ext(req.URL.Path)] {
		out.Header.Set("Cache-Control", staticCacheControl)
	} else {
		out.Header.Set("Cache-Control", apiCacheControl)
	}
	return t.next.RoundTrip(out)
}
