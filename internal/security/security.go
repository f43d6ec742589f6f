// Package security enforces the outbound-target policy for task
// instructions. Free text handed to the browser engine is scanned for URLs
// and bare hostnames; anything pointing at a disallowed scheme, a private or
// loopback address, or a host outside the caller's allowlist is rejected
// before the task leaves the process. Violations are hard stops, never
// retried.
package security

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

var allowedSchemes = []string{"http", "https"}

// privateRanges covers RFC 1918, loopback, link-local, and the IPv6
// loopback and unique-local blocks.
var privateRanges = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
)

var localhostAliases = map[string]bool{
	"localhost":             true,
	"localhost.localdomain": true,
}

// targetPattern matches either scheme://host or a bare dotted hostname. The
// scheme capture is wider than the allowed set on purpose: a task naming
// ftp://... must be rejected, not skipped. Host extraction from free text is
// approximate; obfuscated hosts are a known limitation of this approach.
var targetPattern = regexp.MustCompile(
	`(?i)(?:([a-z][a-z0-9+.\-]*)://([^/\s?#]+))|\b((?:[a-z0-9\-]+\.)+[a-z]{2,})\b`)

// SchemeError reports a captured URL scheme outside the allowed set.
type SchemeError struct {
	Scheme string
}

func (e *SchemeError) Error() string {
	return fmt.Sprintf("Scheme '%s' is not permitted. Allowed schemes: %s",
		e.Scheme, strings.Join(allowedSchemes, ", "))
}

// PrivateAddressError reports a target inside a private or loopback range.
type PrivateAddressError struct {
	Host string
}

func (e *PrivateAddressError) Error() string {
	return fmt.Sprintf("Access to private/loopback address '%s' is not permitted.", e.Host)
}

// DomainError reports a host outside the caller's domain allowlist.
type DomainError struct {
	Host string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("Domain '%s' is not in the allowed_domains list.", e.Host)
}

// IsViolation reports whether err is a security policy violation.
func IsViolation(err error) bool {
	var schemeErr *SchemeError
	var privateErr *PrivateAddressError
	var domainErr *DomainError
	return errors.As(err, &schemeErr) || errors.As(err, &privateErr) || errors.As(err, &domainErr)
}

// ValidateTaskDomains scans task text for embedded URLs and bare dotted
// hostnames and checks every target against the outbound policy: schemes
// outside http/https, private or loopback addresses, and, when
// allowedDomains is non-empty, hosts outside the allowlist. Validation is
// fail-fast on the first violating target. An empty task passes without a
// scan.
func ValidateTaskDomains(task string, allowedDomains []string) error {
	if task == "" {
		return nil
	}
	for _, match := range targetPattern.FindAllStringSubmatch(task, -1) {
		scheme, urlHost, bareHost := match[1], match[2], match[3]

		rawHost := urlHost
		if rawHost == "" {
			rawHost = bareHost
		}
		if rawHost == "" {
			continue
		}

		if scheme != "" && !isAllowedScheme(scheme) {
			return &SchemeError{Scheme: scheme}
		}

		host := normalizeHost(rawHost)

		if isPrivateIP(host) {
			return &PrivateAddressError{Host: host}
		}

		if len(allowedDomains) > 0 && !isDomainAllowed(host, allowedDomains) {
			return &DomainError{Host: host}
		}
	}
	return nil
}

func isAllowedScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	for _, allowed := range allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

// normalizeHost strips a port suffix and trailing dots and lowercases.
// Bracketed IPv6 literals are not given special treatment; the truncated
// form falls through the IP parse and is handled by the allowlist.
func normalizeHost(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.ToLower(strings.TrimRight(host, "."))
}

// isPrivateIP reports whether host is an IP inside a private or loopback
// range, or a textual localhost alias.
func isPrivateIP(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return localhostAliases[host]
	}
	for _, network := range privateRanges {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// isDomainAllowed reports whether host equals an allowlist entry (after
// stripping a leading wildcard marker) or is a subdomain of one.
func isDomainAllowed(host string, allowedDomains []string) bool {
	for _, entry := range allowedDomains {
		normalized := strings.TrimLeft(strings.ToLower(entry), "*.")
		if host == normalized || strings.HasSuffix(host, "."+normalized) {
			return true
		}
	}
	return false
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		networks = append(networks, network)
	}
	return networks
}
