package openrouter

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const defaultBaseURL = "https://openrouter.ai"

var defaultHosts = []string{"openrouter.ai", "api.openrouter.ai"}

// BaseURLError explains why a configured endpoint was refused.
type BaseURLError struct {
	URL    string
	Reason string
	Err    error
}

func (e *BaseURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid OPENROUTER_BASE_URL %q: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid OPENROUTER_BASE_URL %q: %s", e.URL, e.Reason)
}

func (e *BaseURLError) Unwrap() error { return e.Err }

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// ValidateBaseURL accepts only https endpoints on an allowed host. An empty
// allow-list means the public OpenRouter hosts.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	baseURL = normalizeBaseURL(baseURL)
	refuse := func(reason string) error { return &BaseURLError{URL: baseURL, Reason: reason} }

	u, err := url.Parse(baseURL)
	if err != nil {
		return &BaseURLError{URL: baseURL, Reason: "unparsable", Err: err}
	}
	switch {
	case !u.IsAbs() || u.Host == "":
		return refuse("absolute URL with host is required")
	case u.User != nil:
		return refuse("userinfo is not allowed")
	case u.RawQuery != "" || u.Fragment != "" || u.ForceQuery:
		return refuse("query and fragment are not allowed")
	case !strings.EqualFold(u.Scheme, "https"):
		return refuse("https is required")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return refuse("host is required")
	}
	if _, ok := hostSet(allowedHosts)[host]; !ok {
		return refuse(fmt.Sprintf("host %q is not in OPENROUTER_ALLOWED_HOSTS", host))
	}
	return nil
}

// hostSet reduces entries such as "https://proxy.internal:8443/" to bare
// lower-case host names.
func hostSet(entries []string) map[string]struct{} {
	out := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if h := bareHost(e); h != "" {
			out[h] = struct{}{}
		}
	}
	if len(out) == 0 {
		for _, h := range defaultHosts {
			out[h] = struct{}{}
		}
	}
	return out
}

func bareHost(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s, _, _ = strings.Cut(s, "/")
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	return strings.Trim(s, "[]")
}
