package dto

import (
	"time"

	"dnshelper/internal/domain"
)

type HostEntry struct {
	Hostname  string    `json:"hostname"`
	IP        string    `json:"ip"`
	TTL       int       `json:"ttl"`
	Permanent bool      `json:"permanent"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewHostEntry(e domain.HostEntry) HostEntry {
	return HostEntry{
		Hostname:  e.Hostname,
		IP:        e.IP,
		TTL:       e.TTL,
		Permanent: e.IsPermanent(),
		Comment:   e.Comment,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func NewHostEntries(entries []domain.HostEntry) []HostEntry {
	out := make([]HostEntry, len(entries))
	for i, e := range entries {
		out[i] = NewHostEntry(e)
	}
	return out
}

// AddHost is the body of POST /hosts. Omitted fields keep the table defaults.
type AddHost struct {
	Hostname string  `json:"hostname"`
	IP       string  `json:"ip,omitempty"`
	TTL      *int    `json:"ttl,omitempty"`
	Comment  *string `json:"comment,omitempty"`
}

type AddHostResult struct {
	Hostname string `json:"hostname"`
	Added    bool   `json:"added"`
}
