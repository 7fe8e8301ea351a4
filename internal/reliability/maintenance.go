// Package reliability provides database maintenance and backup jobs.
package reliability

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/database"
)

// MaintenanceJob performs daily database maintenance: integrity check, WAL
// checkpoint and vacuum of every registered database.
type MaintenanceJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(databases map[string]*database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "db_maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	start := time.Now()
	j.log.Info().Msg("Starting database maintenance")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for name, db := range j.databases {
		if db == nil {
			continue
		}

		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}

		if err := db.Vacuum(); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("Vacuum failed")
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(start)).
		Msg("Database maintenance completed")
	return nil
}

// BackupJob writes daily file backups of the registered databases into
// backupDir/daily/YYYY-MM-DD/ and prunes directories older than the
// retention window.
type BackupJob struct {
	databases     map[string]*database.DB
	backupDir     string
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates a new backup job. retentionDays <= 0 keeps 7 days.
func NewBackupJob(databases map[string]*database.DB, backupDir string, retentionDays int, log zerolog.Logger) *BackupJob {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &BackupJob{
		databases:     databases,
		backupDir:     backupDir,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "db_backup"
}

// Run executes the backup job
func (j *BackupJob) Run() error {
	today := time.Now().Format("2006-01-02")
	targetDir := filepath.Join(j.backupDir, "daily", today)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	for name, db := range j.databases {
		if db == nil {
			continue
		}
		target := filepath.Join(targetDir, name+".db")
		if err := j.backupDatabase(db, target); err != nil {
			return fmt.Errorf("failed to back up %s: %w", name, err)
		}
		if err := j.verifyBackup(target); err != nil {
			return fmt.Errorf("backup verification failed for %s: %w", name, err)
		}
		j.log.Debug().Str("database", name).Str("path", target).Msg("Backup written")
	}

	j.pruneOldBackups()

	j.log.Info().Str("date", today).Int("databases", len(j.databases)).Msg("Backups completed")
	return nil
}

// backupDatabase snapshots one database with VACUUM INTO, which produces a
// consistent copy without blocking writers.
func (j *BackupJob) backupDatabase(db *database.DB, target string) error {
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	_, err := db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", target))
	return err
}

// verifyBackup opens the backup copy and runs an integrity check.
func (j *BackupJob) verifyBackup(path string) error {
	backupDB, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer backupDB.Close()

	var result string
	if err := backupDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned %q", result)
	}
	return nil
}

// pruneOldBackups removes daily backup directories beyond the retention
// window. Directory names are YYYY-MM-DD, so lexical order is date order.
func (j *BackupJob) pruneOldBackups() {
	dailyDir := filepath.Join(j.backupDir, "daily")
	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		return
	}

	var days []string
	for _, e := range entries {
		if e.IsDir() {
			days = append(days, e.Name())
		}
	}
	sort.Strings(days)

	for len(days) > j.retentionDays {
		oldest := days[0]
		days = days[1:]
		if err := os.RemoveAll(filepath.Join(dailyDir, oldest)); err != nil {
			j.log.Warn().Err(err).Str("date", oldest).Msg("Failed to prune backup")
			continue
		}
		j.log.Debug().Str("date", oldest).Msg("Pruned old backup")
	}
}
