package statemachine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    models.EntityState
		to      models.EntityState
		allowed bool
	}{
		{"draft to pending", models.StateDraft, models.StatePending, true},
		{"draft to broken", models.StateDraft, models.StateBroken, true},
		{"draft to archived", models.StateDraft, models.StateArchived, true},
		{"draft to published", models.StateDraft, models.StatePublished, false},
		{"pending to published", models.StatePending, models.StatePublished, true},
		{"pending to draft", models.StatePending, models.StateDraft, true},
		{"published to archived", models.StatePublished, models.StateArchived, true},
		{"published to broken", models.StatePublished, models.StateBroken, true},
		{"published to draft", models.StatePublished, models.StateDraft, false},
		{"published to pending", models.StatePublished, models.StatePending, false},
		{"broken to draft", models.StateBroken, models.StateDraft, true},
		{"broken to pending", models.StateBroken, models.StatePending, true},
		{"broken to published", models.StateBroken, models.StatePublished, false},
		{"archived to draft", models.StateArchived, models.StateDraft, true},
		{"archived to pending", models.StateArchived, models.StatePending, false},
		{"archived to published", models.StateArchived, models.StatePublished, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCanTransition_SelfTransitionAlwaysLegal(t *testing.T) {
	states := []models.EntityState{
		models.StateDraft, models.StatePending, models.StatePublished,
		models.StateBroken, models.StateArchived,
	}
	for _, s := range states {
		assert.True(t, CanTransition(s, s), "self-transition for %s", s)
	}
}

func TestValidate_ReturnsTypedError(t *testing.T) {
	err := Validate(models.StatePublished, models.StateDraft)
	assert.Error(t, err)

	var invalid *InvalidTransitionError
	assert.True(t, errors.As(err, &invalid))
	assert.Equal(t, models.StatePublished, invalid.From)
	assert.Equal(t, models.StateDraft, invalid.To)
}

func TestAllowedForAutomation(t *testing.T) {
	assert.True(t, AllowedForAutomation(models.StateDraft))
	assert.True(t, AllowedForAutomation(models.StatePending))
	assert.True(t, AllowedForAutomation(models.StateBroken))
	assert.False(t, AllowedForAutomation(models.StatePublished))
	assert.False(t, AllowedForAutomation(models.StateArchived))
}
