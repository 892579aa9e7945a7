package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "models/cylinder_safety.onnx", cfg.Vision.ModelPath)
	assert.Equal(t, "models/demand_lstm.onnx", cfg.Forecast.ModelPath)
	assert.Equal(t, "reports", cfg.Vision.ReportDir)
	assert.Equal(t, 50, cfg.Vision.Train.Epochs)
	assert.Equal(t, 100, cfg.Forecast.Train.Epochs)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
vision:
  model_path: custom/safety.onnx
  train:
    epochs: 5
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "custom/safety.onnx", cfg.Vision.ModelPath)
	assert.Equal(t, 5, cfg.Vision.Train.Epochs)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// untouched keys keep their defaults
	assert.Equal(t, "models/cylinder_safety.ckpt", cfg.Vision.CheckpointPath)
	assert.Equal(t, 100, cfg.Forecast.Train.Epochs)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vision: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
