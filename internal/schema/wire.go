package schema

import "time"

// APIVersion is the semantic version of the remote HTTP surface. Clients
// refuse to sync with a server whose major version differs.
const APIVersion = "v1.2.0"

// ServerStatus is returned by GET /api/status.
type ServerStatus struct {
	DBConfigured bool   `json:"dbConfigured"`
	APIVersion   string `json:"apiVersion,omitempty"`
	Dialect      string `json:"dialect,omitempty"`
}

// SearchHit is a note matched by a search, with a short excerpt around the
// first match. Matches in the snippet are wrapped in <mark> tags.
type SearchHit struct {
	Note
	Snippet string `json:"snippet"`
}

// ChangeEvent is broadcast to change subscribers after the remote store
// accepts a mutation.
type ChangeEvent struct {
	Type      string     `json:"type"`
	Entity    EntityType `json:"entity"`
	Action    Action     `json:"action"`
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
}

// ChangeEventType is the Type of every ChangeEvent.
const ChangeEventType = "changed"
