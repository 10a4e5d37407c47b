package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatus_IsTerminal(t *testing.T) {
	assert.False(t, TaskStatusWorking.IsTerminal())
	assert.False(t, TaskStatusInputRequired.IsTerminal())
	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
	assert.True(t, TaskStatusCancelled.IsTerminal())
}

func TestTaskStatus_CanTransitionTo(t *testing.T) {
	terminal := []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled}

	for _, to := range terminal {
		assert.True(t, TaskStatusWorking.CanTransitionTo(to), "working -> %s", to)
		assert.True(t, TaskStatusInputRequired.CanTransitionTo(to), "input_required -> %s", to)
	}
	assert.True(t, TaskStatusWorking.CanTransitionTo(TaskStatusInputRequired))
	assert.True(t, TaskStatusInputRequired.CanTransitionTo(TaskStatusWorking))

	// Terminal statuses are absorbing.
	for _, from := range terminal {
		for _, to := range []TaskStatus{TaskStatusWorking, TaskStatusInputRequired, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled} {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestTaskStatus_NoSelfTransition(t *testing.T) {
	assert.False(t, TaskStatusWorking.CanTransitionTo(TaskStatusWorking))
	assert.False(t, TaskStatusInputRequired.CanTransitionTo(TaskStatusInputRequired))
}
