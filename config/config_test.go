package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return dir, path
}

func TestLoadDefaults(t *testing.T) {
	dir, path := writeConfig(t, "")
	body := "server:\n  data_dir: " + filepath.Join(dir, "data") + "\n" +
		"log:\n  file: " + filepath.Join(dir, "logs", "app.log") + "\n" +
		"db:\n  file: " + filepath.Join(dir, "db", "results.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 40.0, cfg.Classifier.Low)
	assert.Equal(t, 70.0, cfg.Classifier.High)
	assert.Equal(t, 40.0, cfg.Fallback.Min)
	assert.Equal(t, 95.0, cfg.Fallback.Max)
	assert.Equal(t, 30, cfg.Detector.MinSize)
	assert.Equal(t, "opencv", cfg.Detector.Backend)
	assert.Equal(t, 75.0, cfg.Alerts.SevereThreshold)

	require.Len(t, cfg.Detector.Ladder, 6)
	assert.Equal(t, LadderStep{ScaleFactor: 1.05, MinNeighbors: 5}, cfg.Detector.Ladder[0])
	assert.Equal(t, LadderStep{ScaleFactor: 1.2, MinNeighbors: 3}, cfg.Detector.Ladder[5])

	assert.DirExists(t, filepath.Join(dir, "data"))
	assert.DirExists(t, filepath.Join(dir, "logs"))
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir, path := writeConfig(t, "")
	body := "server:\n  data_dir: " + dir + "\n" +
		"log:\n  file: " + filepath.Join(dir, "app.log") + "\n" +
		"db:\n  enabled: false\n" +
		"classifier:\n  low: 60\n  high: 80\n" +
		"detector:\n  backend: pigo\n  ladder:\n    - scale_factor: 1.3\n      min_neighbors: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 60.0, cfg.Classifier.Low)
	assert.Equal(t, 80.0, cfg.Classifier.High)
	assert.Equal(t, "pigo", cfg.Detector.Backend)
	require.Len(t, cfg.Detector.Ladder, 1)
	assert.Equal(t, 1.3, cfg.Detector.Ladder[0].ScaleFactor)
}

func TestLoadEnvOverride(t *testing.T) {
	dir, path := writeConfig(t, "")
	body := "server:\n  data_dir: " + dir + "\n" +
		"log:\n  file: " + filepath.Join(dir, "app.log") + "\n" +
		"db:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("STRESS_DETECT_SERVER_PORT", "8081")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	dir, path := writeConfig(t, "")
	body := "server:\n  data_dir: " + dir + "\n" +
		"log:\n  file: " + filepath.Join(dir, "app.log") + "\n" +
		"classifier:\n  low: 80\n  high: 60\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestValidateRejectsEmptyLadderAndBadFallback(t *testing.T) {
	cfg := &Config{}
	dir, path := writeConfig(t, "")
	body := "server:\n  data_dir: " + dir + "\n" +
		"log:\n  file: " + filepath.Join(dir, "app.log") + "\n" +
		"db:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	loaded, err := Load(path)
	require.NoError(t, err)
	*cfg = *loaded

	cfg.Fallback.Min, cfg.Fallback.Max = 90, 50
	assert.Error(t, cfg.Validate())

	cfg.Fallback.Min, cfg.Fallback.Max = 40, 95
	cfg.Detector.Ladder = nil
	assert.Error(t, cfg.Validate())

	cfg.Detector.Ladder = []LadderStep{{ScaleFactor: 1.1, MinNeighbors: 3}}
	cfg.I18n.DefaultLanguage = "not a language tag!"
	assert.Error(t, cfg.Validate())
}
