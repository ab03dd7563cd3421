package audit

import "time"

// Actions.
const (
	ActionCreate  = "create"
	ActionRespond = "respond"
	ActionStatus  = "status"
)

// Entity types.
const (
	EntityEvent  = "event"
	EntityDevice = "device"
	EntityZone   = "zone"
)

// SourceAPI marks entries written by the HTTP API.
const SourceAPI = "api"

// Entry is a single audit trail record.
type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Filter selects entries. Empty fields match everything.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	UserID     string
	Limit      int
	Offset     int
}

// ListResult is a page of entries, newest first.
type ListResult struct {
	Logs   []Entry `json:"logs"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}
