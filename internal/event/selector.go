package event

import (
	"fmt"
	"net/netip"
)

// AddressSelector picks the coordinating address for an event. When the
// direct source of an event falls inside the configured CIDR (a trusted load
// balancer range), the selector instead uses the nearest untrusted hop from
// the X-Forwarded-For chain; otherwise the direct source address is used.
type AddressSelector struct {
	trusted netip.Prefix
	enabled bool
}

// NewAddressSelector builds a selector from a CIDR string. An empty CIDR
// disables XFF selection and the direct source address is always used.
func NewAddressSelector(cidr string) (*AddressSelector, error) {
	if cidr == "" {
		return &AddressSelector{}, nil
	}
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid xff address selector %q: %w", cidr, err)
	}
	return &AddressSelector{trusted: prefix, enabled: true}, nil
}

// CoordinatingAddress returns the address that groups correlated abuse events
// for the given event.
func (s *AddressSelector) CoordinatingAddress(e Event) string {
	if s == nil || !s.enabled || len(e.XForwardedFor) == 0 {
		return e.SourceAddress
	}
	addr, err := netip.ParseAddr(e.SourceAddress)
	if err != nil || !s.trusted.Contains(addr) {
		return e.SourceAddress
	}
	return e.XForwardedFor[len(e.XForwardedFor)-1]
}
