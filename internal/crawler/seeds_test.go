package crawler

import (
	"reflect"
	"testing"
)

func TestDetectSeedType(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  SeedType
	}{
		{"CIDR /24", "192.168.1.0/24", SeedCIDR},
		{"CIDR /32", "192.168.1.100/32", SeedCIDR},
		{"CIDR IPv6", "2001:db8::/64", SeedCIDR},
		{"CIDR with spaces", " 192.168.1.0/24 ", SeedCIDR},

		{"range simple", "192.168.1.1-192.168.1.10", SeedRange},
		{"range cross subnet", "192.168.1.250-192.168.2.10", SeedRange},
		{"range with spaces", " 192.168.1.1 - 192.168.1.10 ", SeedRange},
		{"range IPv6", "2001:db8::1-2001:db8::10", SeedRange},

		{"single IPv4", "192.168.1.100", SeedSingle},
		{"single IPv6", "2001:db8::1", SeedSingle},
		{"single IPv6 compressed", "::1", SeedSingle},

		{"hostname short", "core-sw1", SeedHost},
		{"hostname fqdn", "core-sw1.example.com", SeedHost},
		{"hostname trailing dot", "core-sw1.example.com.", SeedHost},
		{"hostname with digit labels", "sw1.pod2.example.com", SeedHost},

		{"invalid CIDR", "192.168.1.0/33", SeedUnknown},
		{"near-miss address", "999.1.2.3", SeedUnknown},
		{"leading hyphen label", "-bad.example.com", SeedUnknown},
		{"embedded space", "core sw1", SeedUnknown},
		{"empty", "", SeedUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectSeedType(tt.value); got != tt.want {
				t.Errorf("DetectSeedType(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestExpandSeed(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    []string
		wantErr bool
	}{
		{"single IP", "192.168.1.100", []string{"192.168.1.100"}, false},
		{"single IP with spaces", " 192.168.1.100 ", []string{"192.168.1.100"}, false},
		{"hostname", "core-sw1.example.com", []string{"core-sw1.example.com"}, false},
		{"CIDR /30 drops edges", "10.0.0.0/30", []string{"10.0.0.1", "10.0.0.2"}, false},
		{"CIDR /31 keeps both", "10.0.0.0/31", []string{"10.0.0.0", "10.0.0.1"}, false},
		{"CIDR /32 single host", "10.0.0.5/32", []string{"10.0.0.5"}, false},
		{"range inclusive", "10.0.0.1-10.0.0.3", []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, false},
		{"range single", "10.0.0.1-10.0.0.1", []string{"10.0.0.1"}, false},

		{"CIDR too large", "10.0.0.0/8", nil, true},
		{"range reversed", "10.0.0.9-10.0.0.1", nil, true},
		{"range mixed families", "10.0.0.1-2001:db8::1", nil, true},
		{"garbage", "not a seed!", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandSeed(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExpandSeed(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExpandSeed(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestExpandSeedsDeduplicates(t *testing.T) {
	got, err := ExpandSeeds([]string{"10.0.0.2", "10.0.0.0/30", "10.0.0.1", "Core-SW1", "core-sw1"})
	if err != nil {
		t.Fatalf("ExpandSeeds() error = %v", err)
	}

	// First occurrence order, case-insensitive dedup.
	want := []string{"10.0.0.2", "10.0.0.1", "Core-SW1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandSeeds() = %v, want %v", got, want)
	}
}

func TestExpandSeedsPropagatesErrors(t *testing.T) {
	if _, err := ExpandSeeds([]string{"10.0.0.1", "999.1.2.3"}); err == nil {
		t.Error("ExpandSeeds() accepted an invalid seed")
	}
}

func TestValidateSeed(t *testing.T) {
	valid := []string{"10.0.0.1", "10.0.0.0/29", "10.0.0.1-10.0.0.4", "core-sw1"}
	for _, seed := range valid {
		if err := ValidateSeed(seed); err != nil {
			t.Errorf("ValidateSeed(%q) = %v, want nil", seed, err)
		}
	}

	invalid := []string{"", "999.1.2.3", "10.0.0.0/8", "10.0.0.9-10.0.0.1"}
	for _, seed := range invalid {
		if err := ValidateSeed(seed); err == nil {
			t.Errorf("ValidateSeed(%q) = nil, want error", seed)
		}
	}
}
