package faktorytest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	faktory "github.com/criticalbh/faktory-worker"
)

func TestSplitCommand(t *testing.T) {
	verb, body := splitCommand("BATCH NEW {\"description\":\"d\"}")
	assert.Equal(t, "BATCH NEW", verb)
	assert.Equal(t, `{"description":"d"}`, string(body))

	verb, body = splitCommand("INFO")
	assert.Equal(t, "INFO", verb)
	assert.Nil(t, body)

	verb, body = splitCommand("BATCH OPEN b-1")
	assert.Equal(t, "BATCH OPEN", verb)
	assert.Equal(t, "b-1", string(body))
}

func TestFailNextConsumedOnce(t *testing.T) {
	srv := NewServer(t)
	client := srv.Client(t)
	ctx := context.Background()

	srv.FailNext("PUSH", "queue is full")
	err := client.Push(ctx, faktory.NewJob("email.send", []any{}))
	require.Error(t, err)

	require.NoError(t, client.Push(ctx, faktory.NewJob("email.send", []any{})))
}

func TestCommandsAreRecorded(t *testing.T) {
	srv := NewServer(t)
	client := srv.Client(t)

	require.NoError(t, client.OpenBatch(context.Background(), "b-9"))

	cmd, ok := srv.LastCommand("BATCH OPEN")
	require.True(t, ok)
	assert.Equal(t, "b-9", string(cmd.Body))

	_, ok = srv.LastCommand("BATCH COMMIT")
	assert.False(t, ok)
}
