package resolver

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"dnshelper/internal/hostname"
)

// Chain asks each resolver in order and returns the first non-empty answer. Validation
// errors end the lookup immediately; provider failures fall through to the next resolver.
type Chain struct {
	resolvers []Resolver
}

func NewChain(resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers}
}

func (c *Chain) Resolve(ctx context.Context, host string, qtype uint16) ([]string, error) {
	var (
		errs     []error
		answered bool
	)

	for _, r := range c.resolvers {
		addrs, err := r.Resolve(ctx, host, qtype)
		if err != nil {
			if errors.Is(err, hostname.ErrInvalidHostName) || errors.Is(err, ErrUnsupportedType) {
				return nil, err
			}
			log.Warn("DoH resolver failed, trying next", "host", host, "error", err)
			errs = append(errs, err)
			continue
		}
		if len(addrs) > 0 {
			return addrs, nil
		}
		answered = true
	}

	if answered || len(errs) == 0 {
		return nil, nil
	}
	return nil, errors.Join(errs...)
}

// Len returns the number of resolvers in the chain.
func (c *Chain) Len() int {
	return len(c.resolvers)
}

// Provider returns the chained resolver whose provider is called name.
func (c *Chain) Provider(name string) (Resolver, bool) {
	for _, r := range c.resolvers {
		if n, ok := r.(interface{ Name() string }); ok && n.Name() == name {
			return r, true
		}
	}
	return nil, false
}
