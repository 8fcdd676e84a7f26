package publish

import (
	"fmt"
	"strings"
)

// NotFoundError is returned when the addressed staged or canonical entity
// does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ManualOverrideError is returned when an automated writer attempts to mutate
// an entity authored manually. Manual entities are only ever edited by people.
type ManualOverrideError struct {
	Entity string
	ID     string
}

func (e *ManualOverrideError) Error() string {
	return fmt.Sprintf("%s %s is manually authored and protected from automated writes", e.Entity, e.ID)
}

// LockViolationError is returned when a write would touch fields covered by
// an edit lock and the actor lacks override privilege.
type LockViolationError struct {
	Entity string
	ID     string
	Fields []string
}

func (e *LockViolationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s %s is locked", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s %s has locked fields: %s", e.Entity, e.ID, strings.Join(e.Fields, ", "))
}

// StateError is returned when the publish would leave the entity in a state
// the actor is not allowed to produce.
type StateError struct {
	Entity string
	ID     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
}
