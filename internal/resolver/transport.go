package resolver

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// NewHTTPClient builds the client used to talk to DoH providers. Its connections always go
// through a plain net.Dialer (optionally tunnelled over SOCKS5), never through Dialer, so a
// provider lookup cannot recurse into DoH resolution.
func NewHTTPClient(timeout time.Duration, socks5Addr string) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:         base.DialContext,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout: timeout,
		IdleConnTimeout:     time.Minute,
		MaxIdleConnsPerHost: 4,
		ForceAttemptHTTP2:   true,
	}

	if socks5Addr != "" {
		dialer, err := proxy.SOCKS5("tcp", socks5Addr, nil, base)
		if err != nil {
			return nil, fmt.Errorf("resolver: socks5 dialer: %w", err)
		}
		if ctxDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = ctxDialer.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
