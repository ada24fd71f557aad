package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/khvorov45/hcwstudyapp/internal/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesFileThenLeavesUnsetFieldsAtDefault(t *testing.T) {
	path := writeConfig(t, `
root_dir = "/var/lib/hcwstudyapp"
default_admin_email = "owner@example.com"
`)
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/hcwstudyapp", cfg.RootDir)
	assert.Equal(t, "owner@example.com", cfg.DefaultAdminEmail)
	assert.Equal(t, config.Default().SessionTTL, cfg.SessionTTL)
	assert.Equal(t, config.Default().AuthTokenLength, cfg.AuthTokenLength)
}

func TestLoadFlagOverrideWinsOverFile(t *testing.T) {
	path := writeConfig(t, `root_dir = "/from/file"`)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--root-dir=/from/flag", "--session-ttl=1h", "--auth-token-length=10"}))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.RootDir)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10, cfg.AuthTokenLength)
}

func TestLoadUnsetFlagDoesNotOverrideFile(t *testing.T) {
	path := writeConfig(t, `root_dir = "/from/file"`)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	require.NoError(t, flags.Parse(nil))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "/from/file", cfg.RootDir)
}
