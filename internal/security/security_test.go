package security

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateTaskDomainsEmptyTask(t *testing.T) {
	if err := ValidateTaskDomains("", []string{"example.com"}); err != nil {
		t.Fatalf("empty task must pass, got %v", err)
	}
}

func TestValidateTaskDomainsPlainText(t *testing.T) {
	if err := ValidateTaskDomains("click the first search result and summarize it", nil); err != nil {
		t.Fatalf("task without targets must pass, got %v", err)
	}
}

func TestValidateTaskDomainsAllowsPublicHosts(t *testing.T) {
	tasks := []string{
		"go to https://example.com and read the headline",
		"open http://news.example.org/today?edition=eu",
		"search wikipedia.org for golang",
		"visit Example.COM.",
	}
	for _, task := range tasks {
		if err := ValidateTaskDomains(task, nil); err != nil {
			t.Errorf("ValidateTaskDomains(%q): %v", task, err)
		}
	}
}

func TestValidateTaskDomainsRejectsScheme(t *testing.T) {
	err := ValidateTaskDomains("download ftp://files.example.com/data.csv", nil)
	var schemeErr *SchemeError
	if !errors.As(err, &schemeErr) {
		t.Fatalf("got %v, want *SchemeError", err)
	}
	if schemeErr.Scheme != "ftp" {
		t.Errorf("got scheme %q, want ftp", schemeErr.Scheme)
	}
	if !strings.Contains(err.Error(), "Allowed schemes:") {
		t.Errorf("message missing allowed schemes: %q", err.Error())
	}
}

func TestValidateTaskDomainsSchemeCheckedBeforeHost(t *testing.T) {
	// A disallowed scheme wins even when the host would also be blocked.
	err := ValidateTaskDomains("gopher://127.0.0.1/internal", nil)
	var schemeErr *SchemeError
	if !errors.As(err, &schemeErr) {
		t.Fatalf("got %v, want *SchemeError", err)
	}
}

func TestValidateTaskDomainsBlocksPrivateIPs(t *testing.T) {
	tasks := map[string]string{
		"connect to http://127.0.0.1:8080/admin":      "127.0.0.1",
		"fetch http://10.0.12.7/metrics":              "10.0.12.7",
		"open http://172.16.5.5/console":              "172.16.5.5",
		"open http://192.168.1.1":                     "192.168.1.1",
		"probe http://169.254.169.254/latest/meta":    "169.254.169.254",
		"go to http://localhost/dashboard":            "localhost",
		"go to https://localhost.localdomain/secrets": "localhost.localdomain",
	}
	for task, host := range tasks {
		err := ValidateTaskDomains(task, nil)
		var privateErr *PrivateAddressError
		if !errors.As(err, &privateErr) {
			t.Errorf("ValidateTaskDomains(%q): got %v, want *PrivateAddressError", task, err)
			continue
		}
		if privateErr.Host != host {
			t.Errorf("ValidateTaskDomains(%q): got host %q, want %q", task, privateErr.Host, host)
		}
	}
}

func TestValidateTaskDomainsBlocksPrivateRegardlessOfAllowlist(t *testing.T) {
	err := ValidateTaskDomains("connect to http://127.0.0.1:8080/admin", []string{"127.0.0.1"})
	var privateErr *PrivateAddressError
	if !errors.As(err, &privateErr) {
		t.Fatalf("got %v, want *PrivateAddressError even with allowlist entry", err)
	}
}

func TestValidateTaskDomainsAllowlist(t *testing.T) {
	allowed := []string{"example.com"}

	if err := ValidateTaskDomains("go to https://sub.example.com", allowed); err != nil {
		t.Errorf("subdomain of allowed entry rejected: %v", err)
	}
	if err := ValidateTaskDomains("go to https://example.com/login", allowed); err != nil {
		t.Errorf("exact allowed host rejected: %v", err)
	}

	err := ValidateTaskDomains("go to https://evil.com", allowed)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("got %v, want *DomainError", err)
	}
	if domainErr.Host != "evil.com" {
		t.Errorf("got host %q, want evil.com", domainErr.Host)
	}
}

func TestValidateTaskDomainsAllowlistRejectsSuffixTrick(t *testing.T) {
	// notexample.com is not a subdomain of example.com.
	err := ValidateTaskDomains("go to https://notexample.com", []string{"example.com"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("got %v, want *DomainError", err)
	}
}

func TestValidateTaskDomainsAllowlistWildcard(t *testing.T) {
	allowed := []string{"*.example.com"}

	if err := ValidateTaskDomains("go to https://app.example.com", allowed); err != nil {
		t.Errorf("wildcard subdomain rejected: %v", err)
	}
	// Stripping the wildcard marker also admits the apex host.
	if err := ValidateTaskDomains("go to https://example.com", allowed); err != nil {
		t.Errorf("apex host rejected under wildcard entry: %v", err)
	}
}

func TestValidateTaskDomainsAllowlistCaseInsensitive(t *testing.T) {
	if err := ValidateTaskDomains("go to https://App.Example.COM", []string{"EXAMPLE.com"}); err != nil {
		t.Errorf("case-mismatched allowlist entry rejected: %v", err)
	}
}

func TestValidateTaskDomainsBareHostAgainstAllowlist(t *testing.T) {
	err := ValidateTaskDomains("search on evil.com for credentials", []string{"example.com"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("bare host: got %v, want *DomainError", err)
	}
}

func TestValidateTaskDomainsPortAndTrailingDotStripped(t *testing.T) {
	err := ValidateTaskDomains("open http://evil.com.:8443/x", []string{"example.com"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("got %v, want *DomainError", err)
	}
	if domainErr.Host != "evil.com" {
		t.Errorf("got host %q, want evil.com after normalization", domainErr.Host)
	}
}

func TestValidateTaskDomainsFailFast(t *testing.T) {
	// First violating target decides the error type.
	err := ValidateTaskDomains("open http://10.0.0.1 then https://evil.com", []string{"example.com"})
	var privateErr *PrivateAddressError
	if !errors.As(err, &privateErr) {
		t.Fatalf("got %v, want *PrivateAddressError from the first target", err)
	}
}

func TestValidateTaskDomainsBoundaryGuard(t *testing.T) {
	// The final label must end at a word boundary, so example.com2 is not
	// extracted as a host.
	if err := ValidateTaskDomains("artifact example.com2 is ready", []string{"other.org"}); err != nil {
		t.Errorf("got %v, want pass", err)
	}
}

func TestValidateTaskDomainsExtractsFilenameLikeHosts(t *testing.T) {
	// Dotted filenames look like hosts to the extractor and are checked
	// against the allowlist. Known approximation of free-text scanning.
	err := ValidateTaskDomains("download archive.tar.gz from the portal", []string{"example.com"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("got %v, want *DomainError", err)
	}
	if domainErr.Host != "archive.tar.gz" {
		t.Errorf("got host %q, want archive.tar.gz", domainErr.Host)
	}
}

func TestIsViolation(t *testing.T) {
	cases := []error{
		&SchemeError{Scheme: "ftp"},
		&PrivateAddressError{Host: "127.0.0.1"},
		&DomainError{Host: "evil.com"},
	}
	for _, err := range cases {
		if !IsViolation(err) {
			t.Errorf("IsViolation(%T) = false, want true", err)
		}
	}
	if IsViolation(errors.New("plain")) {
		t.Error("IsViolation(plain error) = true, want false")
	}
}
