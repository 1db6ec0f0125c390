package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "data.db", cfg.DBFile)
	assert.Equal(t, "files", cfg.FilesFolder)
	assert.Equal(t, CorruptPreserve, cfg.CorruptPolicy)
	assert.FileExists(t, path)
}

func TestLoadBackfillsMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"db_file": "custom.db"}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom.db", cfg.DBFile)
	assert.Equal(t, "files", cfg.FilesFolder)

	// the file was rewritten with the missing keys filled in
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "custom.db", onDisk["db_file"])
	assert.Contains(t, onDisk, "files_folder")
	assert.Contains(t, onDisk, "corrupt_policy")
}

func TestLoadCompleteFileNotRewritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	_, err := Load(path)
	require.NoError(t, err)
	before, err := os.Stat(path)
	require.NoError(t, err)

	_, err = Load(path)
	require.NoError(t, err)
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("KB_DB_FILE", "env.db")
	t.Setenv("KB_ADMIN_PASSWORD", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.DBFile)
	assert.Equal(t, "secret", cfg.AdminPassword)
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
