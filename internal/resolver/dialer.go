package resolver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Dialer connects to host:port addresses after resolving the host through a Resolver.
// Callers that must bypass the system resolver take a *Dialer explicitly, e.g. as the
// DialContext of an http.Transport; nothing is intercepted globally.
type Dialer struct {
	Resolver Resolver
	Forward  *net.Dialer
}

func NewDialer(r Resolver, timeout time.Duration) *Dialer {
	return &Dialer{
		Resolver: r,
		Forward:  &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second},
	}
}

func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	forward := d.Forward
	if forward == nil {
		forward = &net.Dialer{}
	}

	if ip := net.ParseIP(host); ip != nil {
		return forward.DialContext(ctx, network, address)
	}

	addrs, err := d.lookup(ctx, host, network)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}

	var dialErrs []error
	for _, addr := range addrs {
		conn, err := forward.DialContext(ctx, network, net.JoinHostPort(addr, port))
		if err == nil {
			return conn, nil
		}
		dialErrs = append(dialErrs, err)
	}
	return nil, errors.Join(dialErrs...)
}

func (d *Dialer) lookup(ctx context.Context, host, network string) ([]string, error) {
	var qtypes []uint16
	switch network {
	case "tcp4", "udp4":
		qtypes = []uint16{dns.TypeA}
	case "tcp6", "udp6":
		qtypes = []uint16{dns.TypeAAAA}
	default:
		qtypes = []uint16{dns.TypeA, dns.TypeAAAA}
	}

	var lastErr error
	for _, qtype := range qtypes {
		addrs, err := d.Resolver.Resolve(ctx, host, qtype)
		if err != nil {
			lastErr = err
			continue
		}
		if usable := onlyIPs(addrs); len(usable) > 0 {
			return usable, nil
		}
	}
	return nil, lastErr
}

// onlyIPs drops answer data that is not an address literal.
func onlyIPs(addrs []string) []string {
	out := addrs[:0:0]
	for _, a := range addrs {
		if net.ParseIP(a) != nil {
			out = append(out, a)
		}
	}
	return out
}
