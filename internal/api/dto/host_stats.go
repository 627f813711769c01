package dto

type HostStats struct {
	Permanent int64 `json:"permanent"`
	Temporary int64 `json:"temporary"`
	Total     int64 `json:"total"`
}
