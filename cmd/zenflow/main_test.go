package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisuiheng/zenflow-go/ai"
	"github.com/lisuiheng/zenflow-go/protocols/gemini"
)

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gemini:
  api_key: from-file
  voice: Puck
audio:
  frame_size: 2048
storage:
  path: /tmp/zen.db
logging:
  level: debug
  outputs: [stdout]
`), 0o644))
	t.Setenv("ZENFLOW_GEMINI_API_KEY", "from-env")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Gemini.APIKey)
	assert.Equal(t, "Puck", cfg.Gemini.Voice)
	assert.Equal(t, 2048, cfg.Audio.FrameSize)
	assert.Equal(t, 16000, cfg.Audio.InputSampleRate)
	assert.Equal(t, 24000, cfg.Audio.OutputSampleRate)
	assert.Equal(t, "/tmp/zen.db", cfg.Storage.Path)
	assert.Equal(t, []string{"stdout"}, cfg.Logging.Outputs)
	assert.Equal(t, ai.DefaultTextModel, cfg.Gemini.TextModel)
	assert.Equal(t, gemini.DefaultModel, cfg.Gemini.LiveModel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ZENFLOW_GEMINI_API_KEY", "k")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "k", cfg.Gemini.APIKey)
	assert.Equal(t, gemini.DefaultBaseURL, cfg.Gemini.LiveURL)
	assert.Equal(t, "data/zenflow.db", cfg.Storage.Path)
	assert.Equal(t, ai.DefaultVoice, cfg.Gemini.Voice)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
