package openrouter

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		baseURL string
		allowed []string
		wantErr string
	}{
		{name: "empty falls back to default", baseURL: "  "},
		{name: "api host with trailing slash", baseURL: "https://api.openrouter.ai/"},
		{name: "scheme is case-insensitive", baseURL: "HTTPS://openrouter.ai"},
		{name: "relative", baseURL: "openrouter.ai", wantErr: "absolute URL"},
		{name: "plain http", baseURL: "http://openrouter.ai", wantErr: "https is required"},
		{name: "unknown host", baseURL: "https://evil.example", wantErr: "not in OPENROUTER_ALLOWED_HOSTS"},
		{name: "userinfo", baseURL: "https://u:p@openrouter.ai", wantErr: "userinfo is not allowed"},
		{name: "query", baseURL: "https://openrouter.ai?x=1", wantErr: "query and fragment"},
		{name: "fragment", baseURL: "https://openrouter.ai#top", wantErr: "query and fragment"},
		{name: "configured proxy", baseURL: "https://proxy.internal:8443", allowed: []string{" https://Proxy.Internal:8443/ "}},
		{name: "allow-list replaces defaults", baseURL: "https://openrouter.ai", allowed: []string{"proxy.internal"}, wantErr: "not in OPENROUTER_ALLOWED_HOSTS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBaseURL(tt.baseURL, tt.allowed)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			var be *BaseURLError
			if !errors.As(err, &be) {
				t.Fatalf("expected *BaseURLError, got %T", err)
			}
		})
	}
}

func TestHostSetFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	got := hostSet([]string{" ", "https://", "http:///"})
	if len(got) != len(defaultHosts) {
		t.Fatalf("expected default hosts, got %v", got)
	}
	if _, ok := got["openrouter.ai"]; !ok {
		t.Fatalf("missing default host in %v", got)
	}
}
