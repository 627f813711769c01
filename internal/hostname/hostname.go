// Package hostname validates hostnames before they reach storage or the network.
package hostname

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxLength      = 253
	MaxLabelLength = 63
)

// ErrInvalidHostName is returned for hostnames that break DNS length or charset rules.
var ErrInvalidHostName = errors.New("invalid hostname")

// Normalize strips a single trailing dot and checks the total length, every label length
// and that the name is plain ASCII. It never resolves anything.
func Normalize(raw string) (string, error) {
	name := strings.TrimSuffix(raw, ".")

	if len(name) < 1 || len(name) > MaxLength {
		return "", ErrInvalidHostName
	}

	for _, label := range strings.Split(name, ".") {
		if len(label) < 1 || len(label) > MaxLabelLength {
			return "", ErrInvalidHostName
		}
	}

	if !isASCII(name) {
		return "", ErrInvalidHostName
	}

	return name, nil
}

// Valid reports whether Normalize would accept raw.
func Valid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
