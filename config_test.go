package folio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFileEnvAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: From File
url: https://file.example
remote_timeout: 2s
smtp:
  host: smtp.example.com
  port: 587
  from: blog@example.com
`), 0o600))
	t.Setenv("FOLIO_NAME", "From Env")
	t.Setenv("FOLIO_ADMIN_PASSWORD", "pw")
	t.Setenv("FOLIO_PIN_ON_FAILURE", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "From Env", cfg.Name)
	assert.Equal(t, "https://file.example", cfg.URL)
	assert.Equal(t, 2*time.Second, cfg.RemoteTimeout)
	assert.Equal(t, "pw", cfg.AdminPassword)
	assert.True(t, cfg.PinOnFailure)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)

	assert.Equal(t, ":3000", cfg.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.NotifyInterval)
	assert.Equal(t, 5*time.Minute, cfg.PostCacheTTL)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "Blog", cfg.Name)
	assert.Equal(t, "data/folio.db", cfg.DatabasePath)
	assert.Equal(t, "sqlite", cfg.RemoteDriver)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
