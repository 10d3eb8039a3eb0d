package middleware

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy describes what the operator console may call from a browser.
// Origins must be listed exactly; "*" echoes any Origin.
type CORSPolicy struct {
	Origins        []string
	Methods        []string
	Headers        []string
	ExposedHeaders []string
	MaxAge         time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost}
	defaultCORSHeaders = []string{"Authorization", "Content-Type"}
	defaultCORSExposed = []string{"X-Request-ID", "Retry-After"}
)

// Enabled reports whether any origin is configured.
func (p CORSPolicy) Enabled() bool {
	for _, origin := range p.Origins {
		if strings.TrimSpace(origin) != "" {
			return true
		}
	}
	return false
}

// CORS decorates responses for allowed origins and answers preflights itself.
// A preflight from an unknown origin or for a method outside the policy gets 403.
func CORS(p CORSPolicy) func(http.Handler) http.Handler {
	allowAny := false
	origins := map[string]struct{}{}
	for _, origin := range p.Origins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			allowAny = true
		default:
			origins[origin] = struct{}{}
		}
	}

	methods := canonicalSet(p.Methods, defaultCORSMethods, strings.ToUpper)
	if _, ok := methods[http.MethodOptions]; !ok {
		methods[http.MethodOptions] = struct{}{}
	}
	headers := canonicalSet(p.Headers, defaultCORSHeaders, http.CanonicalHeaderKey)
	exposed := canonicalSet(p.ExposedHeaders, defaultCORSExposed, http.CanonicalHeaderKey)
	maxAge := p.MaxAge
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}

	allowMethods := joinSet(methods)
	allowHeaders := joinSet(headers)
	exposeHeaders := joinSet(exposed)
	maxAgeSeconds := strconv.Itoa(int(maxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")
			_, listed := origins[origin]
			allowed := allowAny || listed

			requested := strings.ToUpper(strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")))
			if r.Method == http.MethodOptions && requested != "" {
				if _, ok := methods[requested]; !allowed || !ok {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", allowMethods)
				w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				w.Header().Set("Access-Control-Max-Age", maxAgeSeconds)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Expose-Headers", exposeHeaders)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func canonicalSet(values, fallback []string, canon func(string) string) map[string]struct{} {
	if len(values) == 0 {
		values = fallback
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[canon(v)] = struct{}{}
		}
	}
	return set
}

// joinSet renders a set in a stable order so responses are cacheable.
func joinSet(set map[string]struct{}) string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
