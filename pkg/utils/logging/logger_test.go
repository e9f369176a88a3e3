package logging

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger_WritesFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := InitLogger("test", Options{Dir: dir, Verbose: true})
	require.NoError(t, err)
	logger.Debug("hello")
	_ = logger.Sync()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "radflow_test_")
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestInitLogger_ConsoleOnly(t *testing.T) {
	logger, err := InitLogger("test", Options{})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
