package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
images:
  target_width: 576
  target_height: 432
  probe_addr: "1.1.1.1:53"
quiz:
  max_questions: 5
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 576, cfg.Images.TargetWidth)
	assert.Equal(t, 432, cfg.Images.TargetHeight)
	assert.Equal(t, "1.1.1.1:53", cfg.Images.ProbeAddr)
	assert.Equal(t, 5, cfg.Quiz.MaxQuestions)
	// untouched keys keep their defaults
	assert.Equal(t, "10s", cfg.Images.ConnectTimeout)
	assert.Equal(t, "30s", cfg.Quiz.QuestionTime)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestTTLDuration(t *testing.T) {
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, 15*time.Millisecond, TTLDuration("15ms", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
}
