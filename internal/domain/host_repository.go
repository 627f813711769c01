package domain

import "context"

// HostFilter narrows ListWhere. A zero TTLBelow matches every ttl.
type HostFilter struct {
	TTLBelow   int
	OrderByTTL bool
}

// HostRepository is the durable keyed store behind the hosts table. Get returns
// (nil, nil) for an absent hostname.
type HostRepository interface {
	Get(ctx context.Context, hostname string) (*HostEntry, error)
	Exists(ctx context.Context, hostname string) (bool, error)
	Create(ctx context.Context, entry *HostEntry) error
	Update(ctx context.Context, entry *HostEntry) error
	Delete(ctx context.Context, hostname string) error
	ListWhere(ctx context.Context, filter HostFilter) ([]HostEntry, error)
	ListAll(ctx context.Context) ([]HostEntry, error)

	// Transaction runs fn against a repository bound to one transaction. Returning
	// an error from fn rolls every write back.
	Transaction(ctx context.Context, fn func(tx HostRepository) error) error
}
