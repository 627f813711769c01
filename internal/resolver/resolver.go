// Package resolver resolves hostnames through DNS-over-HTTPS JSON APIs instead of the
// system resolver.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// Resolver looks up the A or AAAA records of a hostname.
//
// A lookup that completes but yields no matching answers returns a nil slice and a nil
// error. Transport failures, timeouts and undecodable responses are reported as
// *ResolutionError; hostnames that fail validation wrap hostname.ErrInvalidHostName.
type Resolver interface {
	Resolve(ctx context.Context, host string, qtype uint16) ([]string, error)
}

// ErrUnsupportedType is returned for query types other than A and AAAA.
var ErrUnsupportedType = errors.New("resolver: only A and AAAA queries are supported")

// ResolutionError reports a failed exchange with a DoH provider.
type ResolutionError struct {
	Provider string
	Hostname string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolver: %s lookup of %s failed: %v", e.Provider, e.Hostname, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the exchange failed because a deadline passed.
func (e *ResolutionError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// ParseType maps "A"/"AAAA" (any case) or their numeric codes to a query type.
func ParseType(raw string) (uint16, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "A", "1":
		return dns.TypeA, nil
	case "AAAA", "28":
		return dns.TypeAAAA, nil
	}
	return 0, ErrUnsupportedType
}

func supportedType(qtype uint16) bool {
	return qtype == dns.TypeA || qtype == dns.TypeAAAA
}
