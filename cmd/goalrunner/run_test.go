package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/example/goalrunner/internal/models"
	"github.com/example/goalrunner/internal/runstate"
)

func TestPrintEvents(t *testing.T) {
	color.NoColor = true

	events := make(chan runstate.Event, 8)
	added := func(id string, typ models.MessageType, text string) {
		events <- runstate.Event{
			Kind:      runstate.EventMessageAdded,
			MessageID: id,
			Message:   &models.Message{ID: id, Type: typ, Text: text},
		}
	}
	chunk := func(id, s string) {
		events <- runstate.Event{Kind: runstate.EventDetailAppended, MessageID: id, Chunk: s}
	}

	added("1", models.MessageUserInput, "Plan a launch")
	added("2", models.MessageTaskAdded, "Research")
	added("3", models.MessageExecutingTask, "reason Research")
	chunk("3", "Done ")
	chunk("3", "researching.")
	chunk("1", "ignored")
	added("4", models.MessageGeneratedReport, "")
	chunk("4", "All good.")
	close(events)

	var out bytes.Buffer
	printEvents(&out, events)

	want := "> Plan a launch\n" +
		"  + task Research\n" +
		"Executing: reason Research\n" +
		"Done researching.\n" +
		"Response:\n" +
		"All good.\n"
	assert.Equal(t, want, out.String())
}

func TestPrintEventsMarksDroppedUpdates(t *testing.T) {
	color.NoColor = true

	events := make(chan runstate.Event, 3)
	events <- runstate.Event{
		Kind:      runstate.EventMessageAdded,
		Seq:       1,
		MessageID: "1",
		Message:   &models.Message{ID: "1", Type: models.MessageGeneratedReport},
	}
	events <- runstate.Event{Kind: runstate.EventDetailAppended, Seq: 2, MessageID: "1", Chunk: "Sum"}
	events <- runstate.Event{Kind: runstate.EventDetailAppended, Seq: 5, MessageID: "1", Chunk: "text"}
	close(events)

	var out bytes.Buffer
	printEvents(&out, events)
	assert.Equal(t, "Response:\nSum [2 updates skipped] text\n", out.String())
}

func TestNewLogger(t *testing.T) {
	lg, err := newLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, lg.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, lg.Core().Enabled(zapcore.WarnLevel))

	lg, err = newLogger("warn", true)
	require.NoError(t, err)
	assert.True(t, lg.Core().Enabled(zapcore.DebugLevel))

	_, err = newLogger("loud", false)
	assert.Error(t, err)
}
