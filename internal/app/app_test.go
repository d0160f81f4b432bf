package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/surgecast/internal/entities"
)

func testEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("SURGECAST_ROOT", root)
	t.Setenv("SURGECAST_CONFIG", "")
	t.Setenv("PRODUCER", "tester")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "")
	t.Setenv("OPENAI_API_KEY", "")
	return root
}

func TestNewCreatesWorkingDirectories(t *testing.T) {
	root := testEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "tester", cfg.Producer)

	a, err := New(cfg, true)
	require.NoError(t, err)
	defer a.Close()

	for _, dir := range []string{"fluxes/gfs", "forecasts", "logs", "status"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}

	require.NoError(t, a.Repo.SaveCycleStatus(entities.CycleRecord{Cycle: "2022090500", Status: entities.StatusOngoing}))
	report, err := a.UseCase.BuildStatusReport()
	require.NoError(t, err)
	assert.Equal(t, "2022090500", report.Cycle)
}

func TestLoadConfigReportsMissingFile(t *testing.T) {
	testEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
