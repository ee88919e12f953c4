package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/flox-go/sdk"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "floxctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
base_url: http://localhost:8080
game_id: demo
game_key: demo-key
hero_key: hero
timeout: 5s
export:
  dir: /tmp/flox
  s3:
    bucket: logs
`)

	cfg, err := Load(path, true)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "demo", cfg.GameID)
	assert.Equal(t, "hero", cfg.HeroKey)
	assert.Equal(t, Duration(5*time.Second), cfg.Timeout)
	assert.Equal(t, "/tmp/flox", cfg.Export.Dir)
	assert.Equal(t, "logs", cfg.Export.S3.Bucket)
	// untouched defaults survive
	assert.Equal(t, "us-east-1", cfg.Export.S3.Region)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "game_id: from-file\ngame_key: file-key\ntimeout: 10\n")
	t.Setenv("FLOX_GAME_ID", "from-env")
	t.Setenv("FLOX_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("FLOX_S3_BUCKET", "env-bucket")

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.GameID)
	assert.Equal(t, "file-key", cfg.GameKey)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, Duration(10*time.Second), cfg.Timeout)
	assert.Equal(t, "env-bucket", cfg.Export.S3.Bucket)

	t.Setenv("FLOX_TIMEOUT", "soon")
	_, err = Load(path, true)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := Load(missing, false)
	require.NoError(t, err)
	assert.Equal(t, sdk.DefaultBaseURL, cfg.BaseURL)

	_, err = Load(missing, true)
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeFile(t, "game_id: [unclosed"), true)
	assert.Error(t, err)

	_, err = Load(writeFile(t, "timeout: forever"), true)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())

	cfg.GameID = "g"
	assert.Error(t, cfg.Validate())

	cfg.GameKey = "k"
	assert.NoError(t, cfg.Validate())

	cfg.LogLevel = "loud"
	assert.Error(t, cfg.Validate())
}

func TestToSDK(t *testing.T) {
	cfg := Default()
	cfg.BaseURL = "https://example.test"
	cfg.GameID = "g"
	cfg.GameKey = "k"
	cfg.InsecureSkipVerify = true
	cfg.Timeout = Duration(3 * time.Second)

	logger := logrus.New()
	sdkCfg := cfg.ToSDK(logger)

	assert.Equal(t, "https://example.test", sdkCfg.BaseURL)
	assert.Equal(t, "g", sdkCfg.GameID)
	assert.Equal(t, "k", sdkCfg.GameKey)
	assert.Equal(t, 3*time.Second, sdkCfg.Timeout)
	assert.True(t, sdkCfg.InsecureSkipVerify)
	assert.Same(t, logger, sdkCfg.Logger)
	assert.NoError(t, sdkCfg.Validate())
}
