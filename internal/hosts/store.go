package hosts

import (
	"fmt"

	"dnshelper/internal/domain"
)

// Store is the durable keyed collection the table works against.
type Store = domain.HostRepository

// StorageError wraps a failure of the underlying store.
type StorageError struct {
	Op       string
	Hostname string
	Err      error
}

func (e *StorageError) Error() string {
	if e.Hostname == "" {
		return fmt.Sprintf("hosts: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("hosts: %s %s: %v", e.Op, e.Hostname, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op, hostname string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Hostname: hostname, Err: err}
}
