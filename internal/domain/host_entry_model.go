package domain

import "time"

const (
	// PermanentTTL marks an entry that is never decayed. Any ttl at or above it counts as permanent.
	PermanentTTL = 999
	// DefaultTTL is the countdown given to temporary blocks, in decay cycles.
	DefaultTTL = 60
	// NullRoute is the placeholder address of an entry that is blocked or not resolved yet.
	NullRoute = "0.0.0.0"
)

// HostEntry is one override in the hosts table, keyed by its normalized hostname.
type HostEntry struct {
	Hostname string `gorm:"primaryKey;size:253"`

	// IP holds an IPv4/IPv6 literal, NullRoute when blocked.
	IP string `gorm:"size:45;not null;default:'0.0.0.0'"`

	// TTL counts remaining decay cycles; PermanentTTL exempts the entry from decay.
	TTL int `gorm:"not null;index"`

	Comment string `gorm:"size:1024;not null;default:''"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// IsPermanent reports whether the entry is exempt from decay.
func (h HostEntry) IsPermanent() bool {
	return h.TTL >= PermanentTTL
}

// HostsLine renders the entry as a single hosts-file line without the trailing newline.
func (h HostEntry) HostsLine() string {
	return h.IP + " " + h.Hostname
}
