package audit

import "time"

// Filters narrows an audit timeline query. Zero values are unbounded.
type Filters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// Entry is one recorded ledger event.
type Entry struct {
	ID       int64          `json:"id"`
	At       time.Time      `json:"at"`
	ActorID  *int64         `json:"actor_id,omitempty"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}
