package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mixcue.log")

	l, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	zl := l.GetZerolog()
	zl.Info().Str("session_id", "s1").Msg("decision made")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "decision made")
	assert.Contains(t, string(data), "s1")
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixcue.log")

	l, err := New(Config{Level: "loud", File: path})
	require.NoError(t, err)

	zl := l.GetZerolog()
	zl.Debug().Msg("hidden")
	zl.Info().Msg("visible")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestNewConsoleOnly(t *testing.T) {
	l, err := New(Config{Level: "info", Console: true, Pretty: true})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}
