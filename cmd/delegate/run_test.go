package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/delegate/memory"
)

func TestExitCodeForMapsExitError(t *testing.T) {
	require.Equal(t, 2, exitCodeFor(&exitError{code: 2, err: errors.New("plan invalid")}))
	require.Equal(t, 3, exitCodeFor(&exitError{code: 3, err: errors.New("mcp failure")}))
	require.Equal(t, 1, exitCodeFor(errors.New("unwrapped error")))
}

func TestRenderMemoryContextEmptyDocument(t *testing.T) {
	require.Equal(t, "", renderMemoryContext(nil))
	require.Equal(t, "", renderMemoryContext(&memory.Document{}))
}

func TestRenderMemoryContextListsGoalsAndFeatures(t *testing.T) {
	doc := &memory.Document{
		Goals: []*memory.Goal{
			{
				ID:          "g1",
				Description: "ship the widget",
				Status:      memory.GoalStatusOpen,
				CreatedAt:   time.Now(),
				Features: []*memory.Feature{
					{ID: "f1", GoalID: "g1", Description: "widget renders", Status: memory.FeatureStatusInProgress},
				},
			},
		},
	}

	got := renderMemoryContext(doc)
	require.Contains(t, got, "ship the widget")
	require.Contains(t, got, "widget renders")
	require.Contains(t, got, string(memory.GoalStatusOpen))
}
