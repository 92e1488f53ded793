package diagnostics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultLevelIsWarn(t *testing.T) {
	logger, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}

func TestNew_VerboseRaisesToInfo(t *testing.T) {
	logger, err := New(Config{Verbose: true})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNew_DebugWinsOverVerbose(t *testing.T) {
	logger, err := New(Config{Verbose: true, Debug: true})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestNew_WritesToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	logger, err := New(Config{LogFile: path, Verbose: true})
	require.NoError(t, err)

	logger.Info("hello from the engine")

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "hello from the engine")
}

func TestNew_RejectsNonTCPSyslogURL(t *testing.T) {
	_, err := New(Config{SyslogURL: "udp://127.0.0.1:514"})
	assert.Error(t, err)
}
