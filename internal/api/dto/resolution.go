package dto

type Resolution struct {
	Hostname  string   `json:"hostname"`
	Type      string   `json:"type"`
	Provider  string   `json:"provider,omitempty"`
	Addresses []string `json:"addresses"`
}
