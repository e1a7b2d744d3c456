package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNavigationPolicyCheckURL(t *testing.T) {
	tests := []struct {
		name    string
		policy  NavigationPolicy
		url     string
		wantErr string
	}{
		{
			name:   "plain https URL",
			policy: NavigationPolicy{},
			url:    "https://example.com",
		},
		{
			name:    "file URL blocked by default",
			policy:  NavigationPolicy{},
			url:     "file:///etc/passwd",
			wantErr: "file://",
		},
		{
			name:   "file URL allowed when opted in",
			policy: NavigationPolicy{AllowFileURLs: true},
			url:    "file:///tmp/test.html",
		},
		{
			name:    "localhost blocked by default",
			policy:  NavigationPolicy{},
			url:     "http://localhost:8080",
			wantErr: "localhost",
		},
		{
			name:    "loopback IP blocked by default",
			policy:  NavigationPolicy{},
			url:     "http://127.0.0.1:9222/json",
			wantErr: "localhost",
		},
		{
			name:   "localhost allowed when opted in",
			policy: NavigationPolicy{AllowLocalhostURLs: true},
			url:    "http://localhost:8080",
		},
		{
			name:   "domain on the allowed list",
			policy: NavigationPolicy{AllowedDomains: []string{"example.com"}},
			url:    "https://example.com/page",
		},
		{
			name:    "domain missing from the allowed list",
			policy:  NavigationPolicy{AllowedDomains: []string{"example.com"}},
			url:     "https://other.com/page",
			wantErr: "not in allowed list",
		},
		{
			name:    "blocked domain",
			policy:  NavigationPolicy{BlockedDomains: []string{"blocked.com"}},
			url:     "https://blocked.com/page",
			wantErr: "domain is blocked",
		},
		{
			name:   "wildcard allows subdomains",
			policy: NavigationPolicy{AllowedDomains: []string{"*.example.com"}},
			url:    "https://docs.example.com/howto",
		},
		{
			name:   "wildcard allows the bare domain",
			policy: NavigationPolicy{AllowedDomains: []string{"*.example.com"}},
			url:    "https://example.com",
		},
		{
			name:    "wildcard does not allow other domains",
			policy:  NavigationPolicy{AllowedDomains: []string{"*.example.com"}},
			url:     "https://example.org",
			wantErr: "not in allowed list",
		},
		{
			name:   "dot prefix matches subdomains",
			policy: NavigationPolicy{AllowedDomains: []string{".example.com"}},
			url:    "https://a.b.example.com",
		},
		{
			name:    "blocked wins over allowed",
			policy:  NavigationPolicy{AllowedDomains: []string{".example.com"}, BlockedDomains: []string{"evil.example.com"}},
			url:     "https://evil.example.com",
			wantErr: "domain is blocked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.CheckURL(tt.url)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestIsLocalhostHost(t *testing.T) {
	assert.True(t, isLocalhostHost("localhost"))
	assert.True(t, isLocalhostHost("127.0.0.1"))
	assert.True(t, isLocalhostHost("127.1.2.3"))
	assert.True(t, isLocalhostHost("::1"))
	assert.False(t, isLocalhostHost("example.com"))
	assert.False(t, isLocalhostHost("192.168.1.10"))
}
