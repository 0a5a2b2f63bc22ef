package policy

import (
	"net"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// commandMetacharacters are rejected in any command string regardless of
// whether the base command itself is blocklisted.
const commandMetacharacters = "|&;><`"

// RateLimit returns the per-minute call budget for tool, falling back to
// the "default" entry (always present after Load).
func (p *Policy) RateLimit(tool string) int {
	if n, ok := p.Tools.RateLimits[tool]; ok {
		return n
	}
	return p.Tools.RateLimits["default"]
}

// TimeoutSeconds returns the per-call execution timeout.
func (p *Policy) TimeoutSeconds() int {
	if p.Tools.TimeoutSeconds <= 0 {
		return defaultTimeoutSeconds
	}
	return p.Tools.TimeoutSeconds
}

// IsBlockedPort reports whether port is in network.blocked_ports.
func (p *Policy) IsBlockedPort(port int) bool {
	for _, blocked := range p.Network.BlockedPorts {
		if blocked == port {
			return true
		}
	}
	return false
}

// IsAllowedEndpoint reports whether (host, port) matches a configured
// allowed_endpoints entry. Host comparison is case-insensitive and exact;
// an empty Ports list on the entry means any port is allowed for that host.
func (p *Policy) IsAllowedEndpoint(host string, port int) bool {
	host = strings.ToLower(host)
	for _, ep := range p.Network.AllowedEndpoints {
		if strings.ToLower(ep.Host) != host {
			continue
		}
		if len(ep.Ports) == 0 {
			return true
		}
		for _, p := range ep.Ports {
			if p == port {
				return true
			}
		}
	}
	return false
}

// IsAllowedCIDR reports whether ip falls within one of network.allowed_cidrs.
func (p *Policy) IsAllowedCIDR(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidr := range p.Network.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// IsDNSAllowed reports whether host may be resolved: network.allow_dns must
// be set and host must appear in dns_allowlist (an empty allowlist permits
// no hostname resolution at all — allowlists are opt-in, matching the
// firewall's ValidateAddress decision order).
func (p *Policy) IsDNSAllowed(host string) bool {
	if !p.Network.AllowDNS || len(p.Network.DNSAllowlist) == 0 {
		return false
	}
	host = strings.ToLower(host)
	for _, allowed := range p.Network.DNSAllowlist {
		if strings.ToLower(allowed) == host {
			return true
		}
	}
	return false
}

// IsCommandBlocked reports whether commandString names a blocked command or
// contains shell metacharacters, even if the base command itself is not
// blocklisted.
func (p *Policy) IsCommandBlocked(commandString string) bool {
	if strings.ContainsAny(commandString, commandMetacharacters) {
		return true
	}
	fields := strings.Fields(commandString)
	if len(fields) == 0 {
		return false
	}
	base := filepath.Base(fields[0])
	for _, blocked := range p.Commands.Blocked {
		if base == blocked {
			return true
		}
	}
	return false
}

// MatchFS matches an already-resolved absolute path against the filesystem
// policy's glob patterns. Denied always dominates Allowed, regardless of
// declaration order.
func (p *Policy) MatchFS(path string) FSDecision {
	for _, pattern := range p.Filesystem.DeniedGlobs {
		if globMatch(pattern, path) {
			return Denied
		}
	}
	for _, pattern := range p.Filesystem.AllowedGlobs {
		if globMatch(pattern, path) {
			return Allowed
		}
	}
	return Outside
}

func globMatch(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	if err != nil {
		return false
	}
	return ok
}
