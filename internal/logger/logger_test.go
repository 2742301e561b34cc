package logger

import (
	"os"
	"path/filepath"
	"testing"

	"stress-detect-go/config"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesRotatingFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "stress.log")
	closer, err := Init(config.LogConfig{Level: "debug", File: file, MaxSizeMB: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		_ = closer.Close()
	})

	log.WithField("subject", "s-1").Info("hello from test")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
	assert.Contains(t, string(data), "subject=s-1")
	assert.Equal(t, log.DebugLevel, log.GetLevel())
}

func TestInitFallsBackToInfo(t *testing.T) {
	closer, err := Init(config.LogConfig{Level: "loud", Format: "json"})
	require.NoError(t, err)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFormatter(&log.TextFormatter{})
		_ = closer.Close()
	})
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}
