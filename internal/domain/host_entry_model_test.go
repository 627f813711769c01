package domain

import "testing"

func TestHostEntryIsPermanent(t *testing.T) {
	cases := []struct {
		ttl  int
		want bool
	}{
		{0, false},
		{DefaultTTL, false},
		{PermanentTTL - 1, false},
		{PermanentTTL, true},
		{PermanentTTL + 1, true},
	}

	for _, tc := range cases {
		entry := HostEntry{Hostname: "example.com", TTL: tc.ttl}
		if got := entry.IsPermanent(); got != tc.want {
			t.Errorf("IsPermanent() with ttl %d = %v, want %v", tc.ttl, got, tc.want)
		}
	}
}

func TestHostEntryHostsLine(t *testing.T) {
	entry := HostEntry{Hostname: "y.com", IP: "9.9.9.9"}
	if got := entry.HostsLine(); got != "9.9.9.9 y.com" {
		t.Fatalf("HostsLine() = %q, want %q", got, "9.9.9.9 y.com")
	}
}
