// Package statemachine validates lifecycle state transitions for canonical
// entities. The table is shared by the automated publish path and the
// human-facing editing flow.
package statemachine

import (
	"fmt"

	"github.com/Ramsey-B/fern/pkg/models"
)

// InvalidTransitionError is returned when a transition is not in the table.
type InvalidTransitionError struct {
	From models.EntityState
	To   models.EntityState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

var transitions = map[models.EntityState][]models.EntityState{
	models.StateDraft:     {models.StatePending, models.StateBroken, models.StateArchived},
	models.StatePending:   {models.StatePublished, models.StateDraft, models.StateBroken, models.StateArchived},
	models.StatePublished: {models.StateArchived, models.StateBroken},
	models.StateBroken:    {models.StateDraft, models.StatePending, models.StateArchived},
	models.StateArchived:  {models.StateDraft},
}

// automatedStates are the only states an automated writer may leave an entity
// in. Transitions into published/archived belong to the human editing flow.
var automatedStates = map[models.EntityState]bool{
	models.StateDraft:   true,
	models.StatePending: true,
	models.StateBroken:  true,
}

// CanTransition reports whether from -> to is a legal transition.
// Self-transitions are always legal.
func CanTransition(from, to models.EntityState) bool {
	if from == to {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Validate returns an InvalidTransitionError when from -> to is not legal.
func Validate(from, to models.EntityState) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// AllowedForAutomation reports whether an automated writer may leave an
// entity in the given state.
func AllowedForAutomation(state models.EntityState) bool {
	return automatedStates[state]
}
