package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestBackupDir(t *testing.T) {
	backupDir := t.TempDir()
	for _, day := range []string{"2024-03-13", "2024-03-15", "2024-03-14"} {
		require.NoError(t, os.MkdirAll(filepath.Join(backupDir, "daily", day), 0o755))
	}

	job := NewPushJob(nil, backupDir, zerolog.Nop())
	dir, err := job.latestBackupDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(backupDir, "daily", "2024-03-15"), dir)
}

func TestLatestBackupDirEmpty(t *testing.T) {
	backupDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(backupDir, "daily"), 0o755))

	job := NewPushJob(nil, backupDir, zerolog.Nop())
	_, err := job.latestBackupDir()
	require.Error(t, err)
}

func TestObjectKeyPrefixing(t *testing.T) {
	c := &Client{prefix: "marts"}
	assert.Equal(t, "marts/curated.db", c.key("curated.db"))

	c = &Client{prefix: ""}
	assert.Equal(t, "curated.db", c.key("curated.db"))
}
