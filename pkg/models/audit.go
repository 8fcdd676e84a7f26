package models

import (
	"encoding/json"
	"time"
)

// ActorKind classifies who performed an audited mutation.
type ActorKind string

const (
	ActorUser      ActorKind = "user"
	ActorSystem    ActorKind = "system"
	ActorAnonymous ActorKind = "anonymous"
)

// Actor identifies a writer for compliance evaluation. Automated actors have
// a nil ID and never hold lock-override privilege.
type Actor struct {
	ID            *string
	Kind          ActorKind
	OverrideLocks bool
}

// SystemActor is the actor used by all automated writers.
func SystemActor() Actor {
	return Actor{ID: nil, Kind: ActorSystem, OverrideLocks: false}
}

// AuditEntry is one append-only record of a mutation. Entries are never
// updated or deleted.
type AuditEntry struct {
	ID         int64           `json:"id" db:"id"`
	ActorID    *string         `json:"actor_id,omitempty" db:"actor_id"`
	ActorKind  ActorKind       `json:"actor_kind" db:"actor_kind"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   string          `json:"entity_id" db:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty" db:"before"`
	After      json.RawMessage `json:"after,omitempty" db:"after"`
	Reason     string          `json:"reason" db:"reason"`
	RequestID  *string         `json:"request_id,omitempty" db:"request_id"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
