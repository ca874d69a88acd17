package crawler

import (
	"fmt"
	"net/netip"
	"strings"
)

// maxSeedExpansion caps the total number of addresses a seed list may expand
// to. A /16 is the largest block worth crawling sequentially.
const maxSeedExpansion = 65536

// SeedType classifies a seed string.
type SeedType string

const (
	SeedCIDR    SeedType = "cidr"
	SeedRange   SeedType = "range"
	SeedSingle  SeedType = "ip"
	SeedHost    SeedType = "host"
	SeedUnknown SeedType = "unknown"
)

// DetectSeedType classifies a seed value.
//
//	"192.168.1.0/30"            -> cidr
//	"192.168.1.1-192.168.1.50"  -> range
//	"192.168.1.100"             -> ip
//	"core-sw1.example.com"      -> host
//	"999.1.2.3"                 -> unknown
func DetectSeedType(value string) SeedType {
	value = strings.TrimSpace(value)
	if value == "" {
		return SeedUnknown
	}

	if strings.Contains(value, "/") {
		if _, err := netip.ParsePrefix(value); err == nil {
			return SeedCIDR
		}
		return SeedUnknown
	}

	// A range needs both ends to parse as addresses; hostnames like
	// "core-sw1" also contain dashes and must fall through.
	if strings.Contains(value, "-") {
		parts := strings.Split(value, "-")
		if len(parts) == 2 {
			_, serr := netip.ParseAddr(strings.TrimSpace(parts[0]))
			_, eerr := netip.ParseAddr(strings.TrimSpace(parts[1]))
			if serr == nil && eerr == nil {
				return SeedRange
			}
		}
	}

	if _, err := netip.ParseAddr(value); err == nil {
		return SeedSingle
	}

	if isHostname(value) {
		return SeedHost
	}
	return SeedUnknown
}

// isHostname accepts DNS-name shaped strings. At least one letter is
// required so near-miss addresses like "999.1.2.3" are rejected instead of
// silently becoming hostnames.
func isHostname(value string) bool {
	if len(value) > 253 {
		return false
	}
	hasLetter := false
	for _, label := range strings.Split(strings.TrimSuffix(value, "."), ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
				hasLetter = true
			case r >= '0' && r <= '9', r == '-':
			default:
				return false
			}
		}
	}
	return hasLetter
}

// ValidateSeed checks a single seed value without expanding large blocks.
func ValidateSeed(value string) error {
	switch DetectSeedType(value) {
	case SeedUnknown:
		return fmt.Errorf("invalid seed %q: must be an IP, CIDR block, IP range or hostname", value)
	case SeedCIDR:
		_, err := expandCIDRSeed(value)
		return err
	case SeedRange:
		_, err := expandRangeSeed(value)
		return err
	default:
		return nil
	}
}

// ExpandSeed turns one seed value into individual connectable addresses.
// CIDR blocks expand to their usable hosts, ranges are inclusive, single
// addresses and hostnames pass through.
func ExpandSeed(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	switch DetectSeedType(value) {
	case SeedCIDR:
		return expandCIDRSeed(value)
	case SeedRange:
		return expandRangeSeed(value)
	case SeedSingle, SeedHost:
		return []string{value}, nil
	default:
		return nil, fmt.Errorf("invalid seed %q: must be an IP, CIDR block, IP range or hostname", value)
	}
}

// ExpandSeeds flattens a seed list into unique addresses, preserving first
// occurrence order so the frontier starts in the order the caller gave.
func ExpandSeeds(values []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, value := range values {
		addrs, err := ExpandSeed(value)
		if err != nil {
			return nil, err
		}
		for _, addr := range addrs {
			key := strings.ToLower(addr)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, addr)
			if len(out) > maxSeedExpansion {
				return nil, fmt.Errorf("seed list expands past %d addresses", maxSeedExpansion)
			}
		}
	}
	return out, nil
}

// expandCIDRSeed lists the usable hosts of a block. IPv4 network and
// broadcast addresses are skipped except for /31 and /32.
func expandCIDRSeed(cidr string) ([]string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
	}

	maxBits := 32
	if prefix.Addr().Is6() {
		maxBits = 128
	}
	if maxBits-prefix.Bits() > 16 {
		return nil, fmt.Errorf("CIDR block %s larger than %d hosts", cidr, maxSeedExpansion)
	}

	skipEdges := prefix.Addr().Is4() && prefix.Bits() < 31

	var ips []string
	addr := prefix.Masked().Addr()
	if skipEdges {
		addr = addr.Next()
	}
	for prefix.Contains(addr) {
		ips = append(ips, addr.String())
		addr = addr.Next()
	}
	if skipEdges && len(ips) > 0 {
		ips = ips[:len(ips)-1]
	}
	return ips, nil
}

// expandRangeSeed lists every address between the two ends, inclusive.
func expandRangeSeed(value string) ([]string, error) {
	parts := strings.Split(value, "-")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid range %q: expected start-end", value)
	}

	start, err := netip.ParseAddr(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("invalid range start: %w", err)
	}
	end, err := netip.ParseAddr(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, fmt.Errorf("invalid range end: %w", err)
	}
	if start.Is4() != end.Is4() {
		return nil, fmt.Errorf("range %q mixes address families", value)
	}
	if start.Compare(end) > 0 {
		return nil, fmt.Errorf("range start %s is after end %s", start, end)
	}

	var ips []string
	for current := start; ; current = current.Next() {
		ips = append(ips, current.String())
		if len(ips) > maxSeedExpansion {
			return nil, fmt.Errorf("range %q larger than %d hosts", value, maxSeedExpansion)
		}
		if current.Compare(end) == 0 {
			break
		}
	}
	return ips, nil
}
