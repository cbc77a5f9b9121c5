// Package domainpolicy implements the §4.2 host allow/deny rules shared by
// target URLs and webhook URLs.
package domainpolicy

import (
	"fmt"
	"strings"

	"github.com/sentinel-webhook/monitor/internal/taxonomy"
	"github.com/sentinel-webhook/monitor/pkg/pattern"
)

// Check evaluates host against denylist then allowlist patterns. Patterns
// are exact ("example.com"), suffix-wildcard ("*.example.com", strict
// subdomains only), or leading-dot (".example.com", same semantics as the
// wildcard form). An empty allowlist means "any host not denied."
// Rejections are returned as a *taxonomy.DomainPolicyError.
func Check(host string, allowlist, denylist []string) error {
	host = strings.ToLower(host)

	for _, rule := range denylist {
		if matches(host, rule) {
			return &taxonomy.DomainPolicyError{Host: host, Rule: fmt.Sprintf("denied by rule %q", rule)}
		}
	}

	if len(allowlist) == 0 {
		return nil
	}

	for _, rule := range allowlist {
		if matches(host, rule) {
			return nil
		}
	}
	return &taxonomy.DomainPolicyError{Host: host, Rule: "not present in allowlist"}
}

// matches delegates to pkg/pattern's wildcard glob. A leading-dot pattern
// (".example.com") is normalized to the "*." form first; both then match
// strict subdomains only, since a bare "example.com" never carries the
// ".example.com" suffix the glob requires.
func matches(host, p string) bool {
	p = strings.ToLower(p)
	if strings.HasPrefix(p, ".") {
		p = "*" + p
	}
	return pattern.MatchWildcard(host, p)
}
