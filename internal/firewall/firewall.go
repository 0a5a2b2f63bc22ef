// Package firewall implements the outbound-connection allowlist: CIDR/
// endpoint matching, DNS-allowlisted hostname resolution with a bounded
// cache, and URL validation. It follows the SSRF-protection pattern in
// reglet-dev-reglet-sdk's hostfuncs.ValidateAddress, adapted to consult a
// mcpsentry/internal/policy.Policy instead of functional options.
package firewall

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"mcpsentry/internal/policy"
)

// resolveHostFunc abstracts hostname resolution so tests can substitute a
// deterministic resolver.
type resolveHostFunc func(host string) ([]string, error)

// Firewall validates outbound network addresses against a Policy.
type Firewall struct {
	policy  *policy.Policy
	cache   *dnsCache
	resolve resolveHostFunc
}

// New returns a Firewall enforcing p.
func New(p *policy.Policy) *Firewall {
	return &Firewall{
		policy:  p,
		cache:   newDNSCache(),
		resolve: net.LookupHost,
	}
}

// ValidateAddress implements this decision order:
//  1. port ∈ blocked_ports → blocked_port
//  2. host is an IP literal → allow iff IsAllowedCIDR(host)
//  3. hostname matching an allowed endpoint → allow without resolution
//  4. allow_dns && host ∈ dns_allowlist → resolve (cached), allow iff
//     resolved IP ∈ allowed CIDR
//  5. otherwise → dns_not_allowed or endpoint_not_allowed
func (fw *Firewall) ValidateAddress(host string, port int) error {
	if fw.policy.IsBlockedPort(port) {
		return &NetworkBlocked{Host: host, Port: port, Reason: ReasonBlockedPort}
	}

	if ip := net.ParseIP(host); ip != nil {
		if fw.policy.IsAllowedCIDR(host) {
			return nil
		}
		return &NetworkBlocked{Host: host, Port: port, Reason: ReasonNotInAllowedRange}
	}

	if fw.policy.IsAllowedEndpoint(host, port) {
		return nil
	}

	if fw.policy.IsDNSAllowed(host) {
		resolvedIP, err := fw.resolveCached(host)
		if err != nil {
			return &NetworkBlocked{Host: host, Port: port, Reason: ReasonDNSResolutionError}
		}
		if fw.policy.IsAllowedCIDR(resolvedIP) {
			return nil
		}
		return &NetworkBlocked{Host: host, Port: port, Reason: ReasonNotInAllowedRange}
	}

	if !fw.policy.Network.AllowDNS || len(fw.policy.Network.DNSAllowlist) > 0 {
		return &NetworkBlocked{Host: host, Port: port, Reason: ReasonDNSNotAllowed}
	}
	return &NetworkBlocked{Host: host, Port: port, Reason: ReasonEndpointNotAllowed}
}

// resolveCached returns the first resolved IP for host, using and
// populating the bounded DNS cache.
func (fw *Firewall) resolveCached(host string) (string, error) {
	if ip, ok := fw.cache.get(host); ok {
		return ip, nil
	}

	addrs, err := fw.resolve(host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("resolve %s: no addresses returned", host)
	}

	resolved := addrs[0]
	fw.cache.insert(host, resolved)
	return resolved, nil
}

// ValidateURL parses rawURL, extracts host and port (defaulting the port by
// scheme when absent: 80 for http, 443 for https), and delegates to
// ValidateAddress.
func (fw *Firewall) ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &MalformedURL{URL: rawURL, Cause: err}
	}
	if u.Host == "" {
		return &MalformedURL{URL: rawURL, Cause: fmt.Errorf("missing host")}
	}

	host := u.Hostname()
	port := defaultPortForScheme(u.Scheme)
	if portStr := u.Port(); portStr != "" {
		parsed, err := strconv.Atoi(portStr)
		if err != nil {
			return &MalformedURL{URL: rawURL, Cause: fmt.Errorf("invalid port %q", portStr)}
		}
		port = parsed
	}

	return fw.ValidateAddress(host, port)
}

func defaultPortForScheme(scheme string) int {
	switch scheme {
	case "https", "wss":
		return 443
	default:
		return 80
	}
}
