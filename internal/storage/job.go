package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// PushJob uploads the most recent daily backup directory to S3. Scheduled
// after the backup job so the day's snapshot exists by the time it runs.
type PushJob struct {
	client    *Client
	backupDir string
	log       zerolog.Logger
}

// NewPushJob creates a new snapshot push job
func NewPushJob(client *Client, backupDir string, log zerolog.Logger) *PushJob {
	return &PushJob{
		client:    client,
		backupDir: backupDir,
		log:       log.With().Str("job", "snapshot_push").Logger(),
	}
}

// Name returns the job name
func (j *PushJob) Name() string {
	return "snapshot_push"
}

// Run executes the push job
func (j *PushJob) Run() error {
	dir, err := j.latestBackupDir()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	files, err := j.client.Push(ctx, dir)
	if err != nil {
		return fmt.Errorf("snapshot push failed: %w", err)
	}
	j.log.Info().Str("dir", dir).Int("files", files).Msg("Snapshot pushed")
	return nil
}

// latestBackupDir finds the newest daily backup directory. Names are
// YYYY-MM-DD, so the lexically greatest entry is the most recent.
func (j *PushJob) latestBackupDir() (string, error) {
	dailyDir := filepath.Join(j.backupDir, "daily")
	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		return "", fmt.Errorf("failed to read backup directory: %w", err)
	}

	latest := ""
	for _, e := range entries {
		if e.IsDir() && e.Name() > latest {
			latest = e.Name()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no daily backups to push")
	}
	return filepath.Join(dailyDir, latest), nil
}
