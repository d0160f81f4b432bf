package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailedCommandClosesRepository(t *testing.T) {
	t.Setenv("SURGECAST_ROOT", t.TempDir())
	t.Setenv("SURGECAST_CONFIG", "")
	t.Setenv("PRODUCER", "tester")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "")
	t.Setenv("OPENAI_API_KEY", "")

	// no GFS files on disk, so preparing fails
	err := execute(context.Background(), []string{"prepare", "2022090512"})
	require.Error(t, err)
	require.NotNil(t, surge)

	_, err = surge.Repo.ListCycles(1)
	assert.Error(t, err, "repository should be closed after the command")
}

func TestInvalidCycleArgument(t *testing.T) {
	t.Setenv("SURGECAST_ROOT", t.TempDir())
	t.Setenv("SURGECAST_CONFIG", "")
	t.Setenv("PRODUCER", "tester")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	err := execute(context.Background(), []string{"run", "not-a-cycle"})
	assert.Error(t, err)
}
