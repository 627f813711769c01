package hostname

import (
	"errors"
	"strings"
	"testing"
)

// nameOfLength builds a dotted name of exactly n bytes out of labels no longer than 63.
func nameOfLength(n int) string {
	var labels []string
	remaining := n
	for remaining > 0 {
		size := 63
		if remaining < size {
			size = remaining
		}
		// leave room for the separating dot unless this is the last label
		if remaining > size && remaining-size == 1 {
			size--
		}
		labels = append(labels, strings.Repeat("a", size))
		remaining -= size
		if remaining > 0 {
			remaining--
		}
	}
	return strings.Join(labels, ".")
}

func TestNameOfLength(t *testing.T) {
	for _, n := range []int{1, 62, 63, 64, 65, 127, 253, 254} {
		if got := len(nameOfLength(n)); got != n {
			t.Fatalf("nameOfLength(%d) produced %d bytes", n, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"plain", "example.com", "example.com", false},
		{"trailing dot stripped", "example.com.", "example.com", false},
		{"only one trailing dot stripped", "example.com..", "", true},
		{"single label", "localhost", "localhost", false},
		{"empty", "", "", true},
		{"lone dot", ".", "", true},
		{"empty label", "a..com", "", true},
		{"leading dot", ".example.com", "", true},
		{"label of 63", strings.Repeat("b", 63) + ".com", strings.Repeat("b", 63) + ".com", false},
		{"label of 64", strings.Repeat("b", 64) + ".com", "", true},
		{"length 253", nameOfLength(253), nameOfLength(253), false},
		{"length 253 plus trailing dot", nameOfLength(253) + ".", nameOfLength(253), false},
		{"length 254", nameOfLength(254), "", true},
		{"non ascii", "bücher.de", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidHostName) {
					t.Fatalf("Normalize(%q) error = %v, want ErrInvalidHostName", tc.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) returned error: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestValid(t *testing.T) {
	if !Valid("example.org") {
		t.Fatal("Valid rejected example.org")
	}
	if Valid(strings.Repeat("x", 64)) {
		t.Fatal("Valid accepted a 64 byte label")
	}
}
