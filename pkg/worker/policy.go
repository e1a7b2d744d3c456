package worker

import (
	"fmt"
	"net/url"
	"strings"
)

// NavigationPolicy restricts which URLs browser_navigate may open.
// The zero value blocks file:// and localhost targets and allows every
// other domain.
type NavigationPolicy struct {
	AllowFileURLs      bool     `json:"allow_file_urls,omitempty"`
	AllowLocalhostURLs bool     `json:"allow_localhost_urls,omitempty"`
	AllowedDomains     []string `json:"allowed_domains,omitempty"`
	BlockedDomains     []string `json:"blocked_domains,omitempty"`
}

// CheckURL returns an error when the policy forbids navigating to the
// given URL. Domain patterns support exact hosts, "*.example.com"
// wildcards and ".example.com" subdomain suffixes.
func (p NavigationPolicy) CheckURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL format: %s", raw)
	}

	if parsed.Scheme == "file" && !p.AllowFileURLs {
		return fmt.Errorf("navigation blocked: file:// URLs are not allowed")
	}

	if isLocalhostHost(parsed.Hostname()) && !p.AllowLocalhostURLs {
		return fmt.Errorf("navigation blocked: localhost URLs are not allowed")
	}

	host := parsed.Hostname()

	if len(p.AllowedDomains) > 0 && !matchAnyDomain(host, p.AllowedDomains) {
		return fmt.Errorf("navigation blocked: domain not in allowed list: %s", host)
	}

	if matchAnyDomain(host, p.BlockedDomains) {
		return fmt.Errorf("navigation blocked: domain is blocked: %s", host)
	}

	return nil
}

func isLocalhostHost(host string) bool {
	host = strings.ToLower(host)

	return host == "localhost" ||
		host == "127.0.0.1" ||
		host == "::1" ||
		host == "0.0.0.0" ||
		strings.HasPrefix(host, "127.") ||
		strings.HasPrefix(host, "localhost.")
}

func matchAnyDomain(host string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchDomain(host, pattern) {
			return true
		}
	}
	return false
}

func matchDomain(host, pattern string) bool {
	// Exact match
	if host == pattern {
		return true
	}

	// Wildcard match (*.example.com)
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[2:]
		return strings.HasSuffix(host, "."+suffix) || host == suffix
	}

	// Subdomain match (.example.com matches any subdomain)
	if strings.HasPrefix(pattern, ".") {
		return strings.HasSuffix(host, pattern) || host == pattern[1:]
	}

	return false
}
