package firewall

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpsentry/internal/policy"
)

func newTestFirewall(p *policy.Policy) *Firewall {
	return New(p)
}

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	var nb *NetworkBlocked
	require.ErrorAs(t, err, &nb)
	return nb.Reason
}

func TestValidateAddress_BlockedPortTakesPriority(t *testing.T) {
	p := &policy.Policy{Network: policy.Network{
		AllowedCIDRs: []string{"10.0.0.0/8"},
		BlockedPorts: []int{25},
	}}
	fw := newTestFirewall(p)

	err := fw.ValidateAddress("10.0.0.5", 25)
	require.Error(t, err)
	assert.Equal(t, ReasonBlockedPort, reasonOf(t, err))
}

func TestValidateAddress_IPLiteralAgainstCIDR(t *testing.T) {
	p := &policy.Policy{Network: policy.Network{AllowedCIDRs: []string{"10.0.0.0/8"}}}
	fw := newTestFirewall(p)

	assert.NoError(t, fw.ValidateAddress("10.1.2.3", 443))

	err := fw.ValidateAddress("8.8.8.8", 443)
	require.Error(t, err)
	assert.Equal(t, ReasonNotInAllowedRange, reasonOf(t, err))
}

func TestValidateAddress_AllowedEndpointSkipsDNS(t *testing.T) {
	p := &policy.Policy{Network: policy.Network{
		AllowedEndpoints: []policy.Endpoint{{Host: "api.example.com", Ports: []int{443}}},
	}}
	fw := newTestFirewall(p)
	fw.resolve = func(string) ([]string, error) {
		t.Fatal("resolver should not be called for an allowed endpoint")
		return nil, nil
	}

	assert.NoError(t, fw.ValidateAddress("api.example.com", 443))
}

func TestValidateAddress_DNSAllowlistedHostResolvesAndChecksCIDR(t *testing.T) {
	p := &policy.Policy{Network: policy.Network{
		AllowDNS:     true,
		DNSAllowlist: []string{"good.example.com"},
		AllowedCIDRs: []string{"10.0.0.0/8"},
	}}
	fw := newTestFirewall(p)
	fw.resolve = func(host string) ([]string, error) { return []string{"10.1.1.1"}, nil }

	assert.NoError(t, fw.ValidateAddress("good.example.com", 443))
}

func TestValidateAddress_DNSAllowlistedHostResolvesOutsideCIDR(t *testing.T) {
	p := &policy.Policy{Network: policy.Network{
		AllowDNS:     true,
		DNSAllowlist: []string{"good.example.com"},
		AllowedCIDRs: []string{"10.0.0.0/8"},
	}}
	fw := newTestFirewall(p)
	fw.resolve = func(host string) ([]string, error) { return []string{"8.8.8.8"}, nil }

	err := fw.ValidateAddress("good.example.com", 443)
	require.Error(t, err)
	assert.Equal(t, ReasonNotInAllowedRange, reasonOf(t, err))
}

func TestValidateAddress_DNSResolutionFailure(t *testing.T) {
	p := &policy.Policy{Network: policy.Network{
		AllowDNS:     true,
		DNSAllowlist: []string{"flaky.example.com"},
	}}
	fw := newTestFirewall(p)
	fw.resolve = func(host string) ([]string, error) { return nil, fmt.Errorf("no such host") }

	err := fw.ValidateAddress("flaky.example.com", 443)
	require.Error(t, err)
	assert.Equal(t, ReasonDNSResolutionError, reasonOf(t, err))
}

func TestValidateAddress_HostNotInAllowlistBlocked(t *testing.T) {
	p := &policy.Policy{Network: policy.Network{
		AllowDNS:     true,
		DNSAllowlist: []string{"good.example.com"},
	}}
	fw := newTestFirewall(p)

	err := fw.ValidateAddress("evil.example.com", 443)
	require.Error(t, err)
	assert.Equal(t, ReasonDNSNotAllowed, reasonOf(t, err))
}

func TestValidateAddress_DNSResolutionIsCached(t *testing.T) {
	p := &policy.Policy{Network: policy.Network{
		AllowDNS:     true,
		DNSAllowlist: []string{"good.example.com"},
		AllowedCIDRs: []string{"10.0.0.0/8"},
	}}
	fw := newTestFirewall(p)
	calls := 0
	fw.resolve = func(host string) ([]string, error) {
		calls++
		return []string{"10.1.1.1"}, nil
	}

	require.NoError(t, fw.ValidateAddress("good.example.com", 443))
	require.NoError(t, fw.ValidateAddress("good.example.com", 443))
	assert.Equal(t, 1, calls, "second lookup should be served from cache")
}

func TestValidateURL_DefaultsPortByScheme(t *testing.T) {
	p := &policy.Policy{Network: policy.Network{AllowedEndpoints: []policy.Endpoint{
		{Host: "api.example.com", Ports: []int{443}},
	}}}
	fw := newTestFirewall(p)

	assert.NoError(t, fw.ValidateURL("https://api.example.com/v1/resource"))
}

func TestValidateURL_MalformedURL(t *testing.T) {
	fw := newTestFirewall(&policy.Policy{})

	var malformed *MalformedURL
	err := fw.ValidateURL("://not-a-url")
	require.Error(t, err)
	assert.ErrorAs(t, err, &malformed)
}

func TestValidateURL_MissingHost(t *testing.T) {
	fw := newTestFirewall(&policy.Policy{})

	err := fw.ValidateURL("file:///etc/passwd")
	require.Error(t, err)
	var malformed *MalformedURL
	assert.ErrorAs(t, err, &malformed)
}

func TestDNSCache_EvictsOldestBeyondCapacity(t *testing.T) {
	c := newDNSCache()
	for i := 0; i < dnsCacheCapacity+10; i++ {
		c.insert(fmt.Sprintf("host-%d.example.com", i), "10.0.0.1")
	}
	assert.Equal(t, dnsCacheCapacity, c.len())

	_, ok := c.get("host-0.example.com")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.get(fmt.Sprintf("host-%d.example.com", dnsCacheCapacity+9))
	assert.True(t, ok, "most recently inserted entry should still be present")
}
