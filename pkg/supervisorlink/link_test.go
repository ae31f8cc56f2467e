package supervisorlink

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnWritesNewlineDelimitedCommand(t *testing.T) {
	var buf bytes.Buffer
	link := New(&buf)

	require.NoError(t, link.Spawn(5))
	assert.Equal(t, "spawn 5\n", buf.String())
}

func TestSpawnAccumulatesMultipleCommands(t *testing.T) {
	var buf bytes.Buffer
	link := New(&buf)

	require.NoError(t, link.Spawn(3))
	require.NoError(t, link.Spawn(2))
	assert.Equal(t, "spawn 3\nspawn 2\n", buf.String())
}

func TestSpawnWithoutOpenPipeReturnsError(t *testing.T) {
	link := &SupervisorLink{}
	err := link.Spawn(1)
	assert.Error(t, err)
}

func TestShutdownWritesEOFWithoutProcess(t *testing.T) {
	var buf bytes.Buffer
	link := New(&buf)

	require.NoError(t, link.Shutdown(context.Background()))
	assert.Equal(t, "eof\n", buf.String())
}

func TestPollExitWithNoWaiterIsFalse(t *testing.T) {
	link := &SupervisorLink{}
	exited, code, err := link.PollExit()
	assert.False(t, exited)
	assert.Equal(t, 0, code)
	assert.NoError(t, err)
}
