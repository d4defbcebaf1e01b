package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("API_HOST", "https://portal.example.com")
	t.Setenv("API_KEY", "env-key")
	t.Setenv("API_SECRET", "env-secret")
	t.Setenv("USER_EMAIL", "jane@example.com")
	t.Setenv("USER_SSH_IP", "10.0.0.5:22")

	creds, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "https://portal.example.com", creds.APIHost)
	assert.Equal(t, "env-key", creds.APIKey)
	assert.Equal(t, "env-secret", creds.APISecret)
	assert.Equal(t, "jane@example.com", creds.UserEmail)
	assert.Equal(t, "10.0.0.5:22", creds.UserSSHIP)
	assert.NoError(t, creds.RequireAPI())
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("API_KEY", "env-key")
	t.Setenv("API_SECRET", "env-secret")

	creds, err := Load(Overrides{APIKey: "flag-key"})
	require.NoError(t, err)

	assert.Equal(t, "flag-key", creds.APIKey)
	assert.Equal(t, "env-secret", creds.APISecret)
}

func TestEnvFileOverridesFlags(t *testing.T) {
	t.Setenv("API_HOST", "https://portal.example.com")

	path := filepath.Join(t.TempDir(), "creds.env")
	require.NoError(t, os.WriteFile(path, []byte("apiKey=file-key\napiSecret=file-secret\n"), 0o600))

	creds, err := Load(Overrides{APIKey: "flag-key", EnvFile: path})
	require.NoError(t, err)

	assert.Equal(t, "file-key", creds.APIKey)
	assert.Equal(t, "file-secret", creds.APISecret)
}

func TestEnvFileExportedSpelling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.env")
	require.NoError(t, os.WriteFile(path, []byte("API_KEY=k\nAPI_SECRET=s\nAPI_HOST=https://h\n"), 0o600))

	creds, err := Load(Overrides{EnvFile: path})
	require.NoError(t, err)

	assert.Equal(t, "k", creds.APIKey)
	assert.Equal(t, "s", creds.APISecret)
	assert.Equal(t, "https://h", creds.APIHost)
}

func TestEnvFileMissing(t *testing.T) {
	_, err := Load(Overrides{EnvFile: filepath.Join(t.TempDir(), "nope.env")})
	require.Error(t, err)
}

func TestRequireAPI(t *testing.T) {
	var creds Credentials
	assert.Error(t, creds.RequireAPI())

	creds.APIHost = "https://portal.example.com"
	assert.Error(t, creds.RequireAPI())

	creds.APIKey = "k"
	creds.APISecret = "s"
	assert.NoError(t, creds.RequireAPI())
}
