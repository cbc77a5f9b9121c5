// Package safety implements the §4.1 URL Safety Guard: rejecting URLs
// that could be used to reach private or loopback network ranges (SSRF).
// It is applied to initial target URLs, every redirect hop, every browser
// subresource load, and every webhook URL.
package safety

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/sentinel-webhook/monitor/internal/common/urlutil"
	"github.com/sentinel-webhook/monitor/internal/taxonomy"
)

// Resolver is the DNS lookup used to check a hostname's resolved
// addresses. Swappable in tests for a fake that returns private IPs.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard checks candidate URLs against the SSRF rules and memoizes
// verdicts per (allowLocalhost, normalized host).
type Guard struct {
	resolver Resolver

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

type cacheKey struct {
	allowLocalhost bool
	host           string
}

type cacheEntry struct {
	err error
}

func New(resolver Resolver) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Guard{
		resolver: resolver,
		cache:    make(map[cacheKey]cacheEntry),
	}
}

// Check validates rawURL: scheme must be http/https, user-info must be
// absent, host must be nonempty and must not resolve (directly or via DNS)
// to a private/loopback/reserved address. allowLocalhost is silently
// ignored (treated as false) when the process detects it is running on a
// hosted runtime, per §4.1. Every rejection is returned as a
// *taxonomy.UrlSafetyError.
func (g *Guard) Check(ctx context.Context, rawURL string, allowLocalhost bool) (err error) {
	defer func() {
		if err != nil {
			err = &taxonomy.UrlSafetyError{URL: rawURL, Reason: strings.TrimPrefix(err.Error(), "url safety: ")}
		}
	}()
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("url safety: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url safety: scheme %q not allowed", u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("url safety: user-info not allowed in url")
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("url safety: missing host")
	}

	effectiveAllowLocalhost := allowLocalhost && !OnHostedRuntime()
	host = strings.ToLower(host)

	key := cacheKey{allowLocalhost: effectiveAllowLocalhost, host: host}
	g.mu.Lock()
	if entry, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return entry.err
	}
	g.mu.Unlock()

	verdict := g.check(ctx, host, effectiveAllowLocalhost)

	g.mu.Lock()
	g.cache[key] = cacheEntry{err: verdict}
	g.mu.Unlock()

	return verdict
}

func (g *Guard) check(ctx context.Context, host string, allowLocalhost bool) error {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		if allowLocalhost {
			return nil
		}
		return fmt.Errorf("url safety: %s: localhost hostnames are blocked", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if unwrapped := ip.To4(); unwrapped != nil {
			ip = unwrapped
		}
		if allowLocalhost && ip.IsLoopback() {
			return nil
		}
		if !isPublicUnicast(ip) {
			return fmt.Errorf("url safety: %s: not a public unicast address", host)
		}
		return nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("url safety: %s: dns resolution failed: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("url safety: %s: no addresses resolved", host)
	}
	for _, a := range addrs {
		ip := a.IP
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		if allowLocalhost && ip.IsLoopback() {
			continue
		}
		if !isPublicUnicast(ip) {
			return fmt.Errorf("url safety: %s: resolved to non-public address %s", host, ip)
		}
	}
	return nil
}

func isPublicUnicast(ip net.IP) bool {
	if urlutil.IsPrivateIP(ip) {
		return false
	}
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsMulticast() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}
	return true
}

// OnHostedRuntime reports whether the process appears to be running on a
// managed hosting platform, in which case allow_localhost is forced off
// regardless of configuration. Detection follows the common convention of
// checking for platform-injected environment variables.
func OnHostedRuntime() bool {
	for _, k := range []string{"VERCEL", "AWS_LAMBDA_FUNCTION_NAME", "FUNCTIONS_WORKER_RUNTIME", "K_SERVICE", "FLY_APP_NAME"} {
		if os.Getenv(k) != "" {
			return true
		}
	}
	return false
}
