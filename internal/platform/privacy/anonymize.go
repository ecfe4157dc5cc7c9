// Package privacy masks personal data before it reaches logs or storage.
package privacy

import (
	"net/netip"
	"strings"
)

const (
	ipv4Prefix = 24
	ipv6Prefix = 48

	// visibleSuffix is how many trailing characters MaskIdentifier keeps.
	visibleSuffix = 4
)

// AnonymizeIP reduces an address to its network: /24 for IPv4 (including
// IPv4-mapped IPv6) and /48 for IPv6. Empty input yields "unknown" and
// unparseable input yields "invalid".
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap().WithZone("")

	bits := ipv6Prefix
	if addr.Is4() {
		bits = ipv4Prefix
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}

// MaskIdentifier hides all but the last four characters of a document or
// ID number. Short values are masked completely.
func MaskIdentifier(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	runes := []rune(id)
	if len(runes) <= visibleSuffix {
		return strings.Repeat("*", len(runes))
	}
	hidden := len(runes) - visibleSuffix
	return strings.Repeat("*", hidden) + string(runes[hidden:])
}
